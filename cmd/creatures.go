package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
)

func newCreaturesCmd() *cobra.Command {
	var (
		r     catalogue.PageRange
		all   bool
		names []string
	)
	cmd := &cobra.Command{
		Use:   "creatures",
		Short: "Crawl listing pages and fetch each creature's detail page",
		Long: `creatures crawls the listing pages in range and, as rows arrive, fetches
the detail page of each listed creature. Pages are archived to the configured
storage backend and each parsed creature is printed as one JSON line.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			creatures, errs, err := a.Creatures(cmd.Context(), pageRange(r, all), names)
			if err != nil {
				return fmt.Errorf("crawl creatures: %w", err)
			}
			logErrors(errs)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, c := range creatures {
				if err := enc.Encode(c); err != nil {
					return fmt.Errorf("write creature: %w", err)
				}
			}
			zap.L().Info("creatures finished", zap.Int("creatures", len(creatures)), zap.Int("errors", len(errs)))
			return nil
		},
	}
	addRangeFlags(cmd, &r, &all)
	cmd.Flags().StringSliceVar(&names, "name", nil, "only follow listings with this name (repeatable)")
	return cmd
}
