package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP console",
		Long: "Serve tool calls, conversation turns, context preview, flush, stats and " +
			"Prometheus metrics over HTTP. Hand edits to the markdown files are reindexed " +
			"while running. On SIGINT or SIGTERM the session is flushed, then closed.",
		Run: runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (default: $AIDE_LISTEN or 127.0.0.1:8089)")
	cmd.Flags().Bool("no-watch", false, "Do not watch the markdown files for edits")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")
	noWatch, _ := cmd.Flags().GetBool("no-watch")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}

	m, logger, err := initManager(cmd, cfg)
	if err != nil {
		exitErr("open memory", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !noWatch {
		go func() {
			if err := m.Watch(ctx); err != nil {
				logger.Warn("file watcher stopped", zap.Error(err))
			}
		}()
	}

	serveErr := server.New(m, logger.Named("http")).ListenAndServe(ctx, cfg.Listen)

	// The signal context is done; flush with a fresh one.
	if _, err := m.Flush(context.Background(), ""); err != nil {
		logger.Error("flush on shutdown failed", zap.Error(err))
	}
	if err := m.Close(); err != nil {
		logger.Error("close memory", zap.Error(err))
	}
	if serveErr != nil {
		exitErr("serve", serveErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), `{"ok":true}`)
}
