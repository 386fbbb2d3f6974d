// Package cli implements the aide-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/config"
	"github.com/rcliao/aide/internal/logging"
	"github.com/rcliao/aide/internal/memory"
)

var (
	dirFlag      string
	configFlag   string
	logLevelFlag string
	formatFlag   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "aide-memory",
	Short: "Dual-tier memory for a personal assistant agent",
	Long: "Markdown-backed long-term facts and daily logs, a full-text index over both, " +
		"and a short-term conversation window. Text in, JSON out.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "Memory directory (default: $AIDE_MEMORY_DIR or ./aide-memory)")
	RootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config file (default: $AIDE_CONFIG)")
	RootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return cfg, err
	}
	if dirFlag != "" {
		cfg.Dir = dirFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	return cfg, cfg.Validate()
}

// openManager loads configuration and returns an initialized Manager. The
// caller closes it.
func openManager(cmd *cobra.Command) (*memory.Manager, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return initManager(cmd, cfg)
}

func initManager(cmd *cobra.Command, cfg config.Config) (*memory.Manager, *zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	m := memory.New(cfg, memory.WithLogger(logger))
	if err := m.Init(cmd.Context()); err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return m, logger, nil
}

// readContent joins positional args, or reads piped stdin when there are none.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
