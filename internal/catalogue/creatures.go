package catalogue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/extract"
	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
	"github.com/JakeFAU/bestiary-crawler/internal/queue/memory"
)

// Filter selects which listings are followed to their detail page.
type Filter func(extract.Listing) bool

// NameFilter accepts listings whose name is one of names. With no names it
// accepts everything.
func NameFilter(names ...string) Filter {
	if len(names) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(l extract.Listing) bool {
		_, ok := allowed[l.Name]
		return ok
	}
}

// FetchCreature fetches, stores and parses the detail page of listing.
func (c *Catalogue) FetchCreature(ctx context.Context, listing extract.Listing) (extract.Creature, error) {
	creature, err := c.fetchCreature(ctx, listing)
	if err != nil {
		metrics.ObserveCreature(statusError)
		return extract.Creature{}, fmt.Errorf("creature %q: %w", listing.Name, err)
	}
	metrics.ObserveCreature(statusSuccess)
	return creature, nil
}

func (c *Catalogue) fetchCreature(ctx context.Context, listing extract.Listing) (extract.Creature, error) {
	slug := listing.Slug()
	if slug == "" {
		return extract.Creature{}, fmt.Errorf("listing has no detail url")
	}
	body, blobURI, err := c.creaturePage(ctx, listing, slug)
	if err != nil {
		return extract.Creature{}, err
	}

	creature, err := extract.ParseCreature(listing, string(body))
	if err != nil {
		metrics.ObserveExtractionError(extract.StageCreature)
		return extract.Creature{}, err
	}

	if c.records != nil || c.publisher != nil {
		record, err := c.newRecord(slug, creature, blobURI, body)
		if err != nil {
			return extract.Creature{}, err
		}
		if c.records != nil {
			if err := c.records.StoreCreature(ctx, record); err != nil {
				return extract.Creature{}, fmt.Errorf("store record: %w", err)
			}
		}
		c.announce(ctx, record)
	}
	c.logger.Debug("creature fetched", zap.String("name", creature.Name), zap.String("blob", blobURI))
	return creature, nil
}

// creaturePage returns the detail page body and the URI it is stored at. In
// resume mode a stored copy is used instead of fetching the page again.
func (c *Catalogue) creaturePage(ctx context.Context, listing extract.Listing, slug string) ([]byte, string, error) {
	blobPath := c.blobPath(slug)
	body, ok, err := c.storedObject(ctx, blobPath)
	if err != nil {
		return nil, "", fmt.Errorf("read stored page: %w", err)
	}
	if ok {
		c.logger.Debug("creature resumed from store", zap.String("slug", slug))
		return body, c.stored.URI(blobPath), nil
	}

	req, err := c.fetcher.Fetch(c.ItemURL(listing))
	if err != nil {
		return nil, "", err
	}
	resp, err := req.Await(ctx)
	if err != nil {
		return nil, "", err
	}
	var blobURI string
	if c.blobs != nil {
		blobURI, err = c.blobs.PutObject(ctx, blobPath, c.cfg.ContentType, bytes.NewReader(resp.Body))
		if err != nil {
			return nil, "", fmt.Errorf("store page: %w", err)
		}
	}
	return resp.Body, blobURI, nil
}

func (c *Catalogue) announce(ctx context.Context, record CreatureRecord) {
	if c.publisher == nil {
		return
	}
	msgID, err := c.publisher.Publish(ctx, c.topic, CreatureStored{
		ID:          record.ID,
		Slug:        record.Slug,
		Name:        record.Creature.Name,
		BlobURI:     record.BlobURI,
		ContentHash: record.ContentHash,
		FetchedAt:   record.FetchedAt,
	})
	if err != nil {
		c.logger.Warn("publish creature failed", zap.String("slug", record.Slug), zap.Error(err))
		return
	}
	c.logger.Debug("creature published", zap.String("slug", record.Slug), zap.String("message_id", msgID))
}

func (c *Catalogue) blobPath(slug string) string {
	return path.Join(c.cfg.BlobPrefix, slug+".html")
}

func (c *Catalogue) newRecord(slug string, creature extract.Creature, blobURI string, body []byte) (CreatureRecord, error) {
	id, err := c.ids.NewID()
	if err != nil {
		return CreatureRecord{}, fmt.Errorf("record id: %w", err)
	}
	hash, err := c.hasher.Hash(body)
	if err != nil {
		return CreatureRecord{}, fmt.Errorf("hash page: %w", err)
	}
	return CreatureRecord{
		ID:          id,
		Slug:        slug,
		Creature:    creature,
		BlobURI:     blobURI,
		ContentHash: hash,
		FetchedAt:   c.clock.Now(),
	}, nil
}

// FetchCreatures consumes source until it is closed and drained, fetching the
// detail page of every listing accepted by filter (all of them when filter is
// nil). Detail fetches run concurrently with consumption. Failed creatures
// are logged and collected as errors.
func (c *Catalogue) FetchCreatures(ctx context.Context, source ListingSource, filter Filter) ([]extract.Creature, []error) {
	var (
		j    joiner[extract.Creature]
		errs []error
	)
	for {
		listing, err := source.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				errs = append(errs, fmt.Errorf("consume listings: %w", err))
			}
			break
		}
		if filter != nil && !filter(listing) {
			continue
		}
		j.Go(func() (extract.Creature, error) {
			creature, err := c.FetchCreature(ctx, listing)
			if err != nil {
				c.logger.Error("creature failed", zap.String("name", listing.Name), zap.Error(err))
			}
			return creature, err
		})
	}
	creatures, fetchErrs := j.Wait()
	errs = append(errs, fetchErrs...)
	c.logger.Info("creatures collected", zap.Int("creatures", len(creatures)), zap.Int("errors", len(errs)))
	return creatures, errs
}
