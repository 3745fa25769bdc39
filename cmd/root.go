// Package cmd defines the bestiary-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/app"
	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
	"github.com/JakeFAU/bestiary-crawler/internal/config"
	"github.com/JakeFAU/bestiary-crawler/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		resume  bool
		logger  *zap.Logger
	)

	cmd := &cobra.Command{
		Use:   "bestiary-crawler",
		Short: "Crawls a paginated creature catalogue through a bounded fetch pool",
		Long: `bestiary-crawler discovers the listing pages of a creature catalogue,
fetches them concurrently through a fixed pool of workers, and optionally
follows every listing to its detail page, archiving the page and the parsed
record.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if resume {
				cfg.Catalogue.Resume = true
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env CRAWLER_* overrides apply either way)")
	cmd.PersistentFlags().BoolVar(&resume, "resume", false, "reuse pages already in the blob store and keep listing pages for the next run")
	cmd.AddCommand(newFetchCmd(), newCreaturesCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func addRangeFlags(cmd *cobra.Command, r *catalogue.PageRange, all *bool) {
	cmd.Flags().IntVar(&r.Start, "start", 0, "first listing page index (zero-based, inclusive)")
	cmd.Flags().IntVar(&r.End, "end", 1, "last listing page index (exclusive)")
	cmd.Flags().BoolVar(all, "all", false, "discover the page count and crawl the whole catalogue")
}

func pageRange(r catalogue.PageRange, all bool) *catalogue.PageRange {
	if all {
		return nil
	}
	return &r
}

func logErrors(errs []error) {
	for _, err := range errs {
		zap.L().Warn("skipped", zap.Error(err))
	}
}
