package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/aide/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export long-term entries and daily logs as a JSON array, oldest first. Filter by kind with --kind.",
		Run:   runExport,
	}

	cmd.Flags().String("kind", "", "Filter by kind")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	entries, err := m.Export(cmd.Context(), model.Kind(kind))
	if err != nil {
		exitErr("export", err)
	}
	if entries == nil {
		entries = []model.Entry{}
	}

	printJSON(cmd, entries)
}
