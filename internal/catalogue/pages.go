package catalogue

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/extract"
	"github.com/JakeFAU/bestiary-crawler/internal/fetch"
	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
)

// PageRange is a half-open range [Start, End) of zero-based listing pages.
type PageRange struct {
	Start int
	End   int
}

// Len reports how many pages the range covers.
func (r PageRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r PageRange) validate() error {
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("invalid page range [%d, %d)", r.Start, r.End)
	}
	return nil
}

// Page is the raw body of one fetched listing page.
type Page struct {
	Index int
	URL   string
	Body  string
}

// DiscoverPages reads the pagination footer of the unpaginated listing and
// returns every page of the catalogue.
func (c *Catalogue) DiscoverPages(ctx context.Context) (PageRange, error) {
	listingURL := c.ListingURL()
	req, err := c.fetcher.Fetch(listingURL)
	if err != nil {
		return PageRange{}, fmt.Errorf("discover pages: %w", err)
	}
	resp, err := req.Await(ctx)
	if err != nil {
		return PageRange{}, fmt.Errorf("discover pages: %w", err)
	}
	maxPage, err := extract.MaxPage(resp.Text())
	if err != nil {
		metrics.ObserveExtractionError(extract.StagePagination)
		return PageRange{}, fmt.Errorf("discover pages from %s: %w", listingURL, err)
	}
	c.logger.Info("discovered catalogue pages", zap.Int("pages", maxPage))
	return PageRange{Start: 0, End: maxPage}, nil
}

func (c *Catalogue) resolveRange(ctx context.Context, r *PageRange) (PageRange, error) {
	if r == nil {
		return c.DiscoverPages(ctx)
	}
	if err := r.validate(); err != nil {
		return PageRange{}, err
	}
	return *r, nil
}

type pageRequest struct {
	index  int
	url    string
	req    *fetch.Request
	stored bool
	// body is set when the page was read back from the blob store.
	body   []byte
}

// submitPages creates and sends every page request before anything is
// awaited, so the whole range is queued for the workers at once. In resume
// mode pages already stored are read back instead.
func (c *Catalogue) submitPages(ctx context.Context, r PageRange) ([]pageRequest, []error) {
	reqs := make([]pageRequest, 0, r.Len())
	var errs []error
	for idx := r.Start; idx < r.End; idx++ {
		pageURL := c.PageURL(idx)
		body, ok, err := c.storedObject(ctx, c.pagePath(idx))
		if err != nil {
			metrics.ObservePage(statusError)
			errs = append(errs, fmt.Errorf("listing page %d: read stored page: %w", idx+1, err))
			continue
		}
		if ok {
			reqs = append(reqs, pageRequest{index: idx, url: pageURL, body: body, stored: true})
			continue
		}
		req, err := c.fetcher.Fetch(pageURL)
		if err != nil {
			metrics.ObservePage(statusError)
			errs = append(errs, err)
			continue
		}
		req.Start()
		reqs = append(reqs, pageRequest{index: idx, url: pageURL, req: req})
	}
	return reqs, errs
}

func (c *Catalogue) awaitPage(ctx context.Context, pr pageRequest) (Page, error) {
	if pr.stored {
		metrics.ObservePage(statusResumed)
		c.logger.Debug("listing page resumed from store", zap.Int("page", pr.index+1))
		return Page{Index: pr.index, URL: pr.url, Body: string(pr.body)}, nil
	}
	resp, err := pr.req.Await(ctx)
	if err != nil {
		metrics.ObservePage(statusError)
		c.logger.Warn("listing page failed", zap.Int("page", pr.index+1), zap.Error(err))
		return Page{}, fmt.Errorf("listing page %d: %w", pr.index+1, err)
	}
	metrics.ObservePage(statusSuccess)
	if c.resume {
		if _, err := c.blobs.PutObject(ctx, c.pagePath(pr.index), c.cfg.ContentType, bytes.NewReader(resp.Body)); err != nil {
			c.logger.Warn("listing page not kept", zap.Int("page", pr.index+1), zap.Error(err))
		}
	}
	return Page{Index: pr.index, URL: pr.url, Body: resp.Text()}, nil
}

// pagePath is where listing page idx is kept in resume mode.
func (c *Catalogue) pagePath(idx int) string {
	return path.Join(c.cfg.BlobPrefix, "pages", strconv.Itoa(idx+1)+".html")
}

// storedObject reads p back from the blob store. ok is false outside resume
// mode or when nothing is stored at p.
func (c *Catalogue) storedObject(ctx context.Context, p string) ([]byte, bool, error) {
	if c.stored == nil {
		return nil, false, nil
	}
	exists, err := c.stored.Exists(ctx, p)
	if err != nil || !exists {
		return nil, false, err
	}
	body, err := c.stored.GetObject(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}
