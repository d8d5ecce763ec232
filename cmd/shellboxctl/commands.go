package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/shellbox/sandbox"
)

var (
	forceFlag   bool
	allFlag     bool
	timeoutFlag time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run a shell command in the sandbox container",
	Long: `Run a shell command in the sandbox container, building the image and
starting the container first when needed. Arguments are joined with spaces and
passed to /bin/sh -c. The exit status of the command is propagated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and remove the sandbox container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log, executor, err := newExecutor()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		defer executor.Close()

		if err := executor.Stop(cmd.Context(), allFlag); err != nil {
			return err
		}
		if allFlag {
			fmt.Fprintln(cmd.OutOrStdout(), "sandbox stopped")
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the container runtime is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log, executor, err := newExecutor()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		defer executor.Close()

		if !executor.IsRuntimeAvailable(cmd.Context()) {
			return sandbox.ErrRuntimeUnavailable
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sandbox container state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the sandbox image",
	Long:  "Build the sandbox image from the configured Dockerfile. Without --force an existing image is kept.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, executor, err := newExecutor()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		defer executor.Close()

		if err := executor.BuildImage(cmd.Context(), forceFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "image %s ready\n", cfg.Sandbox.ImageName)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	execCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Cancel the command after this long (0 uses sandbox.exec_timeout_sec)")
	stopCmd.Flags().BoolVar(&allFlag, "all", true, "Tear the container down; --all=false only connects to the runtime")
	buildCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Rebuild even if the image exists")

	rootCmd.AddCommand(execCmd, stopCmd, pingCmd, statusCmd, buildCmd, configCmd)
}

// exitError carries the exit status of a sandboxed command
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

func runExec(cmd *cobra.Command, args []string) error {
	_, log, executor, err := newExecutor()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	defer executor.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	result, err := executor.Run(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if _, err := cmd.OutOrStdout().Write(result.Output); err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &exitError{code: result.ExitCode}
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, log, executor, err := newExecutor()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	defer executor.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	available := executor.IsRuntimeAvailable(cmd.Context())
	fmt.Fprintf(w, "RUNTIME\t%t\n", available)
	fmt.Fprintf(w, "IMAGE\t%s\n", cfg.Sandbox.ImageName)
	fmt.Fprintf(w, "CONTAINER\t%s\n", cfg.Sandbox.ContainerName)
	if !available {
		return nil
	}

	status, err := executor.Status(cmd.Context())
	if errors.Is(err, sandbox.ErrContainerNotFound) {
		fmt.Fprintf(w, "STATE\tabsent\n")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "STATE\t%s\n", status.State)
	fmt.Fprintf(w, "ID\t%s\n", shortID(status.ID))
	if !status.Created.IsZero() {
		fmt.Fprintf(w, "CREATED\t%s\n", status.Created.Format(time.RFC3339))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
