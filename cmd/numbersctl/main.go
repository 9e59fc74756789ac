// Package main is numbersctl, the operator CLI for the numbers service. It
// shares the server's configuration and dependency graph.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/jsamuelsen11/numbers-core/internal/app/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/app/poller"
	"github.com/jsamuelsen11/numbers-core/internal/app/purchase"
	"github.com/jsamuelsen11/numbers-core/internal/bootstrap"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	profile   string
	configDir string
	timeout   time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "numbersctl",
		Short:         "Operate the numbers service: recovery, balances, housekeeping",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.profile, "profile", "p", os.Getenv("APP_PROFILE"), "config profile (defaults to $APP_PROFILE)")
	flags.StringVar(&opts.configDir, "config-dir", "", "directory holding base.yaml and profile files")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall command timeout")

	rootCmd.AddCommand(recoverCmd(opts))
	rootCmd.AddCommand(balanceCmd(opts))
	rootCmd.AddCommand(purgeCmd(opts))

	return rootCmd
}

func recoverCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Run one crash-recovery sweep",
		Long: `Settle verifications left behind by a crash: release reservations of
interrupted purchases, time out expired polls and refund unrefunded charges.

The sweep takes the outbox file lock, so run it while the server is stopped.
Polling verifications it finds are picked up again by the server's startup
sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(c *bootstrap.Container) error {
				svc, err := do.Invoke[*purchase.Service](c.Injector)
				if err != nil {
					return err
				}
				defer do.MustInvoke[*poller.Poller](c.Injector).Stop()

				report, err := svc.Recover(cmd.Context())
				if encErr := writeJSON(cmd.OutOrStdout(), report); encErr != nil {
					return errors.Join(err, encErr)
				}
				return err
			})
		},
	}
}

func balanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Print a user's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, opts, func(c *bootstrap.Container) error {
				svc, err := do.Invoke[*ledger.Service](c.Injector)
				if err != nil {
					return err
				}
				b, err := svc.Balance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user_id": b.UserID,
					"balance": b.Amount.String(),
					"version": b.Version,
				})
			})
		},
	}
}

func purgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-idempotency",
		Short: "Delete expired idempotency records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(c *bootstrap.Container) error {
				guard, err := do.Invoke[*idempotency.Guard](c.Injector)
				if err != nil {
					return err
				}
				n, err := guard.Purge(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"purged": n})
			})
		},
	}
}

// withContainer loads config, builds the dependency graph, runs fn and
// closes everything fn opened.
func withContainer(cmd *cobra.Command, opts *options, fn func(*bootstrap.Container) error) (err error) {
	if opts.profile == "" {
		return errors.New("--profile or APP_PROFILE is required (e.g. local, dev, qa, prod)")
	}

	var loadOpts []config.Option
	if opts.configDir != "" {
		loadOpts = append(loadOpts, config.WithConfigDir(opts.configDir))
	}
	cfg, err := config.Load(opts.profile, loadOpts...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	cmd.SetContext(ctx)

	c := bootstrap.New(cfg, logger, nil)
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return fn(c)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
