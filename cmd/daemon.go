package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/nicepick/cli"
	"github.com/grovetools/nicepick/internal/daemon"
	"github.com/grovetools/nicepick/internal/daemon/pidfile"
	"github.com/grovetools/nicepick/logging"
	"github.com/grovetools/nicepick/pkg/client"
	"github.com/grovetools/nicepick/pkg/logging/logutil"
	"github.com/grovetools/nicepick/pkg/paths"
	"github.com/grovetools/nicepick/pkg/process"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the picker daemon",
		Long:  "The daemon keeps the catalog loaded and the render surface warm so the picker opens instantly.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonLogsCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the picker daemon in the foreground, or in its own session with --detach.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			if detach {
				return startDetached(cmd, cfgPath)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger("daemon")
			if cli.GetOptions(cmd).Verbose {
				_ = logging.SetLevel("debug")
			}
			logger.WithField("pid", os.Getpid()).Info("Starting daemon")
			return daemon.Run(ctx, daemon.Options{
				Config:     cfg,
				ConfigPath: cfgPath,
				PidPath:    paths.PidFilePath(),
				PidWait:    daemon.DefaultPidWait,
				Logger:     logger,
			})
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "Run the daemon in the background")
	return cmd
}

func startDetached(cmd *cobra.Command, cfgPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(paths.LogDir(), 0700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	args := append([]string{"daemon", "start"}, bootstrapArgs(cfgPath)...)
	pid, err := process.StartDetached(exe, args, filepath.Join(paths.LogDir(), "daemon.out"))
	if err != nil {
		return err
	}
	logging.NewConsole().WithWriter(cmd.ErrOrStderr()).Success(fmt.Sprintf("Daemon started with PID %d", pid))
	return nil
}

func newDaemonStopCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			console := logging.NewConsole().WithWriter(cmd.ErrOrStderr())
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				console.Warn("Daemon is not running")
				return nil
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				if !process.IsProcessAlive(pid) {
					console.Success(fmt.Sprintf("Daemon %d stopped", pid))
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
			console.Success(fmt.Sprintf("Sent SIGTERM to process %d", pid))
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to wait for the daemon to exit")
	return cmd
}

// daemonStatus is the --json form of `daemon status`.
type daemonStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Socket  string `json:"socket"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			status := daemonStatus{Socket: cfg.SocketPath()}
			_, status.PID, err = pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			c := client.New(client.Options{SocketPath: status.Socket}, cli.GetLogger(cmd, "client"))
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if rtt, err := c.Ping(ctx); err != nil {
				status.Error = err.Error()
			} else {
				status.Running = true
				status.Latency = rtt.Round(time.Microsecond).String()
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			console := logging.NewConsole().WithWriter(cmd.OutOrStdout())
			if status.Running {
				console.Success("Daemon is running")
				if status.PID != 0 {
					console.Field("pid", status.PID)
				}
				console.Field("latency", status.Latency)
			} else {
				console.Warn("Daemon is not running")
			}
			console.Path("socket", status.Socket)
			return nil
		},
	}
}

func newDaemonLogsCmd() *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := logutil.FindDaemonLogFile(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return logutil.Tail(ctx, path, logutil.TailOptions{Lines: lines, Follow: follow}, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (-1 for all)")
	return cmd
}
