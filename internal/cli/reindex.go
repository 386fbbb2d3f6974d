package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the markdown files",
		Run:   runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	if err := m.Reindex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}
	st, err := m.Stats(cmd.Context())
	if err != nil {
		exitErr("reindex", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"indexed":%d}`+"\n", st.Indexed)
}
