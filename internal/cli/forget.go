package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/aide/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a long-term memory",
		Long:  "Delete a long-term memory from MEMORY.md. Daily-log entries are append-only.",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	id := args[0]

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	removed, err := m.Forget(cmd.Context(), id)
	if err != nil {
		exitErr("forget", err)
	}
	if !removed {
		exitErr("forget", fmt.Errorf("%w: %s", store.ErrNotFound, id))
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", id)
}
