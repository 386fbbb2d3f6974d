package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by relevance",
		Long: "Rank long-term entries and daily logs with BM25. Plain words match any term, " +
			"upper-case NOT or OR included. A query with quotes, parentheses, prefix* or ^ " +
			"is passed to FTS5 as written.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	results, err := m.Search(cmd.Context(), query, limit)
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "text" {
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f  %s  [%s]  %s\n", r.Score, r.Entry.ID, r.Entry.Kind, r.Snippet)
		}
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return
	}
	printJSON(cmd, results)
}
