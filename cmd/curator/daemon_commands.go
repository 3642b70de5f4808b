package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/daemonctl"
	"curator/internal/daemonrun"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 15 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the curator daemon",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonLogsCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonctl.LaunchOptions{
				ConfigPath: ctx.configFlagValue(),
				LogLevel:   strings.TrimSpace(logLevel),
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe, opts, daemonStartTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.configValue(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in %s and was killed\n", result.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", daemonStopGrace, "How long to wait before killing the daemon")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			printDaemonStatus(cmd, status)
			return nil
		},
	}
}

func printDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Process", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Process", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, status.Backend, colorize))
	if status.QueueDBPath != "" {
		fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}

	if len(status.Workers) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Workers", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, w := range status.Workers {
			detail := fmt.Sprintf("%s, %d claimed, %d completed, %d retried, %d failed",
				w.State, w.Claimed, w.Completed, w.Retried, w.Failed)
			kind := statusOK
			if w.LastError != "" {
				kind = statusWarn
				detail += "; last error: " + w.LastError
			}
			fmt.Fprintln(out, renderStatusLine(w.ID, kind, detail, colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.QueueStats.Total == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable(
		[]tableColumn{{Header: "Status"}, {Header: "Count", Right: true}},
		buildQueueStatusRows(status.QueueStats),
	))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
