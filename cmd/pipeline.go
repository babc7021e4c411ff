package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/mailroute/internal/importer"
	"github.com/teemow/mailroute/internal/logging"
	"github.com/teemow/mailroute/internal/router"
)

type batchOptions struct {
	dryRun bool
	max    int
}

func (o *batchOptions) addFlags(cmd *cobra.Command, maxHelp string) {
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Log what would happen without writing files or the ledger")
	cmd.Flags().IntVar(&o.max, "max", 0, maxHelp)
}

func newImportCmd() *cobra.Command {
	var (
		opts    batchOptions
		account string
		query   string
		labels  string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import new Gmail attachments into the inbox",
		Long: `Fetch messages with attachments that are not yet in the ledger, write every
attachment into the inbox together with a .meta.json sidecar and record the
message id once all of its files are on disk.

The candidate query is, in order of precedence: --query, the configured
query, the configured (or --labels) labels that exist in the account, and
finally all inbox mail with attachments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, logging.StageImport)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx), logging.StageImport)

			_, err = runImport(ctx, a, opts, sourceOverrides{
				account: account,
				query:   query,
				labels:  parseCommaSeparatedList(labels),
			}, cmd.OutOrStdout())
			return err
		},
	}

	opts.addFlags(cmd, "Maximum number of messages per run (default: importer.max_per_run)")
	cmd.Flags().StringVar(&account, "account", "", "Google account name (default: gmail.account)")
	cmd.Flags().StringVar(&query, "query", "", "Gmail search query overriding labels")
	cmd.Flags().StringVar(&labels, "labels", "", "Comma-separated Gmail labels to import from")
	return cmd
}

func newRouteCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route inbox items into case folders",
		Long: `Classify every payload in the inbox by the ordered rule-sets and move it,
together with its sidecar, into the matching case folder. Items without a
match, flagged by the evaluator, or colliding with an existing file go to the
review folder. Every item produces one row in the audit log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, logging.StageRoute)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx), logging.StageRoute)

			_, err = runRoute(ctx, a, opts, cmd.OutOrStdout())
			return err
		},
	}

	opts.addFlags(cmd, "Maximum number of items per run (default: router.max_per_run, 0 = all)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import, then route",
		Long: `Run the import stage followed by the route stage. A failing import (for
example missing credentials) is reported but does not prevent routing what
is already in the inbox; the command still exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, "run")
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx), "run")

			_, importErr := runImport(ctx, a, opts, sourceOverrides{}, cmd.OutOrStdout())
			if importErr != nil {
				a.logger.Error("import stage failed", logging.Err(importErr))
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := runRoute(ctx, a, opts, cmd.OutOrStdout()); err != nil {
				return err
			}
			return importErr
		},
	}

	opts.addFlags(cmd, "Maximum number of messages and of items per stage")
	return cmd
}

func runImport(ctx context.Context, a *app, opts batchOptions, o sourceOverrides, out io.Writer) (*importer.Summary, error) {
	imp, err := a.newImporter(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	max := opts.max
	if max <= 0 {
		max = a.cfg.Importer.MaxPerRun
	}

	sum, err := imp.Run(ctx, importer.RunOptions{DryRun: opts.dryRun, Max: max})
	if sum != nil {
		fmt.Fprintf(out, "import: scanned=%d skipped=%d imported=%d saved=%d failed=%d dry_run=%t\n",
			sum.Scanned, sum.Skipped, sum.Imported, sum.Saved, sum.Failed, sum.DryRun)
	}
	if err != nil {
		return sum, fmt.Errorf("import: %w", err)
	}
	return sum, nil
}

func runRoute(ctx context.Context, a *app, opts batchOptions, out io.Writer) (*router.Summary, error) {
	max := opts.max
	if max <= 0 {
		max = a.cfg.Router.MaxPerRun
	}

	sum, err := a.newRouter(ctx).Run(ctx, router.RunOptions{DryRun: opts.dryRun, Max: max})
	if sum != nil {
		fmt.Fprintf(out, "route: scanned=%d moved=%d review=%d quarantined=%d failed=%d waiting=%d dry_run=%t\n",
			sum.Scanned, sum.Moved, sum.Review, sum.Quarantined, sum.Failed, sum.Skipped, sum.DryRun)
	}
	if err != nil {
		return sum, fmt.Errorf("route: %w", err)
	}
	return sum, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
