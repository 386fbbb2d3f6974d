// Command aide-memory manages the assistant's markdown memory directory.
package main

import (
	"context"
	"os"

	"github.com/rcliao/aide/internal/cli"
)

func main() {
	if err := cli.RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
