package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	entry, err := m.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	printJSON(cmd, entry)
}
