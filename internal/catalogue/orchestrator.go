package catalogue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/extract"
	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
)

// FetchPages fetches every listing page in r, or the whole catalogue when r
// is nil. Pages come back in completion order; per-page failures are
// collected rather than returned. The error result is set only when page
// discovery fails or r is invalid.
func (c *Catalogue) FetchPages(ctx context.Context, r *PageRange) ([]Page, []error, error) {
	pr, err := c.resolveRange(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	reqs, errs := c.submitPages(ctx, pr)

	tasks := make([]func() (Page, error), 0, len(reqs))
	for _, req := range reqs {
		tasks = append(tasks, func() (Page, error) {
			return c.awaitPage(ctx, req)
		})
	}
	pages, fetchErrs := joinAll(tasks)
	errs = append(errs, fetchErrs...)
	c.logger.Info("listing pages fetched",
		zap.Int("requested", pr.Len()),
		zap.Int("succeeded", len(pages)),
		zap.Int("failed", len(errs)),
	)
	return pages, errs, nil
}

// FetchListings fetches the listing pages in r (the whole catalogue when nil)
// and sends every row found to sink. A page that cannot be fetched adds one
// error and no rows. Rows that cannot be parsed are reported while the rest
// of their page is still sent. FetchListings does not close sink.
func (c *Catalogue) FetchListings(ctx context.Context, r *PageRange, sink ListingSink) ([]error, error) {
	if sink == nil {
		return nil, fmt.Errorf("listing sink is required")
	}
	pr, err := c.resolveRange(ctx, r)
	if err != nil {
		return nil, err
	}
	reqs, errs := c.submitPages(ctx, pr)

	tasks := make([]func() (int, error), 0, len(reqs))
	for _, req := range reqs {
		tasks = append(tasks, func() (int, error) {
			page, err := c.awaitPage(ctx, req)
			if err != nil {
				return 0, err
			}
			return c.sendListings(page, sink)
		})
	}
	counts, taskErrs := joinAll(tasks)
	errs = append(errs, taskErrs...)

	total := 0
	for _, n := range counts {
		total += n
	}
	c.logger.Info("listings collected",
		zap.Int("pages", pr.Len()),
		zap.Int("listings", total),
		zap.Int("errors", len(errs)),
	)
	return errs, nil
}

func (c *Catalogue) sendListings(page Page, sink ListingSink) (int, error) {
	listings, parseErr := extract.ParseListings(page.Body)
	if parseErr != nil {
		metrics.ObserveExtractionError(extract.StageListing)
		c.logger.Warn("listing rows skipped", zap.String("url", page.URL), zap.Error(parseErr))
	}
	sent := 0
	for _, listing := range listings {
		if err := sink.Enqueue(listing); err != nil {
			return sent, fmt.Errorf("send listing %q: %w", listing.Name, err)
		}
		sent++
	}
	if parseErr != nil {
		return sent, fmt.Errorf("parse listing page %d: %w", page.Index+1, parseErr)
	}
	return sent, nil
}
