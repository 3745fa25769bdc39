package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
)

func newFetchCmd() *cobra.Command {
	var (
		r   catalogue.PageRange
		all bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Crawl a range of listing pages and print every item URL found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls, errs, err := a.ItemURLs(cmd.Context(), pageRange(r, all))
			if err != nil {
				return fmt.Errorf("crawl listings: %w", err)
			}
			logErrors(errs)
			out := cmd.OutOrStdout()
			for _, u := range urls {
				fmt.Fprintln(out, u)
			}
			zap.L().Info("fetch finished", zap.Int("items", len(urls)), zap.Int("errors", len(errs)))
			return nil
		},
	}
	addRangeFlags(cmd, &r, &all)
	return cmd
}
