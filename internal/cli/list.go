package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	entries, err := m.List(cmd.Context(), store.ListParams{
		Kind:  model.Kind(kind),
		Limit: limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case idsOnly:
		for _, e := range entries {
			fmt.Fprintln(out, e.ID)
		}
	case formatFlag == "text":
		for _, e := range entries {
			first, _, _ := strings.Cut(e.Content, "\n")
			fmt.Fprintf(out, "%s  [%s]  %s\n", e.ID, e.Kind, model.Truncate(first, 80))
		}
	default:
		if entries == nil {
			entries = []model.Entry{}
		}
		printJSON(cmd, entries)
	}
}
