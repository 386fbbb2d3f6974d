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
		Use:   "save [content]",
		Short: "Save a memory",
		Long: "Save a memory. Content can be a positional arg or piped via stdin. " +
			"Logs are appended to today's daily log; other kinds go to MEMORY.md.",
		Run: runSave,
	}

	cmd.Flags().String("kind", "fact", "Kind: fact, preference, decision, summary, log")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("id", "", "Update the long-term entry with this id")
	cmd.Flags().String("source", "user", "Source: user, agent, system")

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	id, _ := cmd.Flags().GetString("id")
	source, _ := cmd.Flags().GetString("source")

	content, err := readContent(cmd, args)
	if err != nil {
		exitErr("save", err)
	}
	if strings.TrimSpace(content) == "" {
		exitErr("save", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	res, err := m.Save(cmd.Context(), store.SaveParams{
		ID:      id,
		Content: content,
		Kind:    model.Kind(kind),
		Tags:    model.NormalizeTags(strings.Split(tagsStr, ",")),
		Source:  model.Source(source),
	})
	if err != nil {
		exitErr("save", err)
	}

	printJSON(cmd, res)
}
