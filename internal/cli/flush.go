package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "flush [summary]",
		Short: "Write a session summary to today's daily log",
		Long:  "Write a session summary to today's daily log. The summary can be a positional arg or piped via stdin.",
		Run:   runFlush,
	}

	RootCmd.AddCommand(cmd)
}

func runFlush(cmd *cobra.Command, args []string) {
	summary, err := readContent(cmd, args)
	if err != nil {
		exitErr("flush", err)
	}

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	entry, err := m.Flush(cmd.Context(), summary)
	if err != nil {
		exitErr("flush", err)
	}

	printJSON(cmd, entry)
}
