package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/aide/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Print the memory block for a prompt",
		Long: "Search for memories relevant to the query and print the delimited block " +
			"that would be injected before the next reasoning turn.",
		Run: runContext,
	}

	cmd.Flags().StringArrayP("message", "m", nil, "Conversation turn as role:content (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	messages, _ := cmd.Flags().GetStringArray("message")
	query := strings.Join(args, " ")

	m, logger, err := openManager(cmd)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()
	defer m.Close()

	for _, raw := range messages {
		role, content, ok := strings.Cut(raw, ":")
		if !ok || !model.ValidRoles[model.Role(role)] {
			exitErr("context", fmt.Errorf("message %q: want role:content with role user, assistant, system or tool", raw))
		}
		m.Observe(model.Role(role), content)
	}

	fmt.Fprintln(cmd.OutOrStdout(), m.BuildContext(cmd.Context(), query))
}
