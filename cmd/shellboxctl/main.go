// Package main implements shellboxctl, an operator CLI for the managed sandbox.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/logger"
	"github.com/isdmx/shellbox/sandbox"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "shellboxctl",
	Short: "Shellbox - manage the shell sandbox container",
	Long: `shellboxctl drives the same Docker sandbox the Shellbox MCP server uses.

It can run commands in the managed container, rebuild its image, report its
state and tear it down. Configuration is shared with the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	return cfg, nil
}

// newExecutor loads configuration and connects to the container runtime
func newExecutor() (*config.Config, *zap.Logger, sandbox.SandboxExecutor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	executor, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, executor, nil
}
