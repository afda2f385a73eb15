// Package cmd wires the nicepick command tree.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/nicepick/cli"
	"github.com/grovetools/nicepick/config"
	"github.com/grovetools/nicepick/pkg/client"
	"github.com/grovetools/nicepick/pkg/profiling"
	"github.com/grovetools/nicepick/version"
)

// exitStatus ends the process with a code but no diagnostic.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// NewRootCmd returns the picker command with all subcommands attached.
func NewRootCmd() (*cobra.Command, *profiling.CobraProfiler) {
	root := cli.NewStandardCommand("nicepick [seed-query]", "Pick an emoji from a warm picker window")
	root.Long = `Opens the picker window, seeded with the query, and prints the chosen
emoji to stdout. A daemon keeps the window and catalog warm; the first
invocation starts it.

Exits 0 when an emoji was picked, 1 when the picker was dismissed and 2 on
errors.

Examples:
  nicepick
  nicepick cat
  nicepick heart --first`
	root.Args = cobra.ArbitraryArgs

	var first bool
	var timeout time.Duration
	root.Flags().BoolVar(&first, "first", false, "Pick the top result without waiting for input")
	root.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting for a selection after this long")

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = profiler.PreRun

	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runPick(cmd, strings.Join(args, " "), first, timeout)
	}

	root.AddCommand(newDaemonCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newPathsCmd())
	root.AddCommand(cli.NewVersionCommand("nicepick"))
	cli.SetVersionTemplate(root, version.GetInfo())

	return root, profiler
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root, profiler := NewRootCmd()
	cli.ApplyStyledHelpRecursive(root)

	err := root.Execute()
	profiler.Finish(root)
	if err == nil {
		return client.ExitSelected
	}

	var status exitStatus
	if stderrors.As(err, &status) {
		return int(status)
	}
	verbose, _ := root.PersistentFlags().GetBool("verbose")
	_ = cli.NewErrorHandler(verbose).Handle(err)
	return client.ExitError
}

func runPick(cmd *cobra.Command, seed string, first bool, timeout time.Duration) error {
	cfg, cfgPath, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cli.GetLogger(cmd, "client")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(clientOptions(cfg, first, timeout, client.SpawnDaemon("", bootstrapArgs(cfgPath), logger)), logger)
	out, err := c.Pick(ctx, seed)
	if code := client.ExitCode(out, err); code != client.ExitSelected {
		if err != nil {
			return err
		}
		return exitStatus(code)
	}

	fmt.Fprintln(cmd.OutOrStdout(), out.Entry.Glyph)
	return nil
}

func clientOptions(cfg *config.Config, first bool, timeout time.Duration, bootstrap func(ctx context.Context) error) client.Options {
	response := cfg.Client.ResponseTimeout.D()
	if timeout > 0 {
		response = timeout
	}
	return client.Options{
		SocketPath:      cfg.SocketPath(),
		ConnectTimeout:  cfg.Client.ConnectTimeout.D(),
		ResponseTimeout: response,
		Backoff: client.Backoff{
			Initial:  cfg.Client.BackoffInitial.D(),
			Max:      cfg.Client.BackoffMax.D(),
			Factor:   2,
			Attempts: cfg.Client.BootstrapAttempts,
		},
		Bootstrap: bootstrap,
		First:     first,
	}
}

// bootstrapArgs forwards an explicit config file to a spawned daemon.
func bootstrapArgs(cfgPath string) []string {
	if cfgPath == "" {
		return nil
	}
	return []string{"--config", cfgPath}
}
