package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/cli/appctx"
	"github.com/lherron/labelsync/internal/remote"
)

const metricsPushTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize labels under the root page",
		Long: `Run walks the tree under the configured root page depth-first. For each page
not yet in the visited cache it deletes the current labels, copies the
parent's labels, adds a label derived from the page title and records the
page in the cache. Pages with attachments are treated as files: they only
receive the parent's labels and their subtree is not visited.

Exit codes:
  0    run completed
  1    configuration or unexpected error
  3    a request kept failing until the retry limit was reached
  130  interrupted`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Log planned label changes without applying them")
	cmd.Flags().String("root", "", "Title of the root page (overrides root_page_on_confluence)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := appctx.Bootstrap(cmd, appctx.ForRun())
	if err != nil {
		return err
	}
	defer app.Close()

	return syncTree(ctx, app)
}

// syncTree runs the engine once and maps the outcome to an exit code.
func syncTree(ctx context.Context, app *appctx.App) error {
	log := app.Logger
	cfg := app.Config
	started := time.Now()

	if cfg.DryRun {
		log.Warn().Msg("Dry run: labels are not changed and pages are not cached.")
	}
	log.Info().
		Str("root", cfg.RootPage).
		Str("space", cfg.SpaceKey).
		Str("cache", cfg.CacheBackend).
		Str("config", cfg.Source).
		Msg("Starting run")

	stats, err := app.Engine.Run(ctx, cfg.RootPage)

	app.Metrics.FinishRun(started, err == nil)
	if cfg.MetricsPushURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), metricsPushTimeout)
		if perr := app.Metrics.Push(pushCtx, cfg.MetricsPushURL, cfg.MetricsJob); perr != nil {
			log.Warn().Err(perr).Msg("Failed to push metrics")
		}
		cancel()
	}

	switch {
	case err == nil:
		log.Info().
			Int("pages", stats.Pages).
			Int("relabeled", stats.Relabeled).
			Int("cached", stats.Cached).
			Int("files", stats.Files).
			Int("labels_removed", stats.LabelsRemoved).
			Int("labels_added", stats.LabelsAdded).
			Dur("elapsed", time.Since(started)).
			Msg("RUN COMPLETED!")
		log.Info().Msg("--------------")
		return nil

	case remote.IsKind(err, remote.KindRetriesExhausted):
		log.Error().Err(err).Int("pages", stats.Pages).Msg("Run stopped, the visited cache keeps the progress made so far.")
		return &ExitError{Code: ExitRetriesExhausted, Err: err, Logged: true}

	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Warn().Int("pages", stats.Pages).Msg("Run interrupted, the visited cache keeps the progress made so far.")
		return &ExitError{Code: ExitInterrupted, Err: err, Logged: true}

	default:
		log.Error().Err(err).Msgf("GENERAL ERROR OCCURRED: %v", err)
		return &ExitError{Code: ExitGeneral, Err: err, Logged: true}
	}
}
