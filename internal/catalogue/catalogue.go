// Package catalogue crawls the monster catalogue: it discovers listing
// pages, fans their fetches out over the fetch provider, and follows each
// listing to its creature detail page.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/clock/system"
	"github.com/JakeFAU/bestiary-crawler/internal/extract"
	"github.com/JakeFAU/bestiary-crawler/internal/fetch"
	"github.com/JakeFAU/bestiary-crawler/internal/hash/sha256"
	"github.com/JakeFAU/bestiary-crawler/internal/id/uuid"
	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
)

// Outcome labels recorded in catalogue metrics.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusResumed = "resumed"
)

// Fetcher hands out awaitable requests. *fetch.Provider implements it.
type Fetcher interface {
	Fetch(rawURL string) (*fetch.Request, error)
}

// BlobStore persists raw creature pages.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// BlobReader is implemented by blob stores that can read back what they
// stored. Resume mode requires it.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	URI(path string) string
}

// RecordStore persists parsed creatures.
type RecordStore interface {
	StoreCreature(ctx context.Context, record CreatureRecord) error
}

// Publisher announces stored creature records.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ListingSink receives listings discovered on catalogue pages.
type ListingSink interface {
	Enqueue(listing extract.Listing) error
}

// ListingSource yields listings until it is closed and drained.
type ListingSource interface {
	Dequeue(ctx context.Context) (extract.Listing, error)
}

// IDGenerator creates record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher digests page bodies.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// CreatureRecord is one parsed creature together with where its page was
// stored.
type CreatureRecord struct {
	ID          string
	Slug        string
	Creature    extract.Creature
	BlobURI     string
	ContentHash string
	FetchedAt   time.Time
}

// CreatureStored is the payload published after a record is stored.
type CreatureStored struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	BlobURI     string    `json:"blob_uri,omitempty"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// MessageKey keys events by slug so updates to one creature stay ordered.
func (e CreatureStored) MessageKey() string { return e.Slug }

// Config describes where the catalogue lives.
type Config struct {
	// Origin is scheme and host, e.g. https://www.dndbeyond.com.
	Origin      string
	ListingPath string
	Sort        string
	// BlobPrefix is prepended to stored page paths.
	BlobPrefix  string
	ContentType string
}

// Option customizes a Catalogue.
type Option func(*Catalogue)

// WithBlobStore stores every fetched creature page.
func WithBlobStore(store BlobStore) Option {
	return func(c *Catalogue) { c.blobs = store }
}

// WithRecordStore stores every parsed creature.
func WithRecordStore(store RecordStore) Option {
	return func(c *Catalogue) { c.records = store }
}

// WithPublisher announces every stored creature on topic. Publish failures
// are logged and do not fail the creature.
func WithPublisher(pub Publisher, topic string) Option {
	return func(c *Catalogue) {
		c.publisher = pub
		c.topic = topic
	}
}

// WithResume reuses pages already in the blob store instead of fetching them
// again, and keeps listing pages under pages/ so an interrupted crawl picks
// up where it stopped. The blob store must implement BlobReader.
func WithResume() Option {
	return func(c *Catalogue) { c.resume = true }
}

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Catalogue) { c.ids = ids }
}

// WithHasher overrides the content hasher.
func WithHasher(h Hasher) Option {
	return func(c *Catalogue) { c.hasher = h }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(c *Catalogue) { c.clock = clock }
}

// Catalogue orchestrates catalogue crawls.
type Catalogue struct {
	cfg       Config
	fetcher   Fetcher
	logger    *zap.Logger
	blobs     BlobStore
	records   RecordStore
	publisher Publisher
	topic     string
	resume    bool
	stored    BlobReader
	ids       IDGenerator
	hasher    Hasher
	clock     Clock
}

// New validates cfg and builds a Catalogue.
func New(cfg Config, fetcher Fetcher, logger *zap.Logger, opts ...Option) (*Catalogue, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return nil, fmt.Errorf("catalogue origin must be an absolute http(s) url, got %q", cfg.Origin)
	}
	cfg.Origin = strings.TrimSuffix(cfg.Origin, "/")
	if cfg.ListingPath == "" {
		cfg.ListingPath = "/monsters"
	}
	if !strings.HasPrefix(cfg.ListingPath, "/") {
		cfg.ListingPath = "/" + cfg.ListingPath
	}
	if cfg.Sort == "" {
		cfg.Sort = "cr"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	c := &Catalogue{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.Named("catalogue"),
		ids:     uuid.New(),
		hasher:  sha256.New(),
		clock:   system.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resume {
		reader, ok := c.blobs.(BlobReader)
		if !ok {
			return nil, errors.New("resume requires a blob store that can read objects back")
		}
		c.stored = reader
	}
	return c, nil
}

// ListingURL is the unpaginated catalogue listing.
func (c *Catalogue) ListingURL() string {
	return c.cfg.Origin + c.cfg.ListingPath
}

// PageURL returns the URL of zero-based listing page idx.
func (c *Catalogue) PageURL(idx int) string {
	return fmt.Sprintf("%s?page=%d&sort=%s", c.ListingURL(), idx+1, url.QueryEscape(c.cfg.Sort))
}

// ItemURL returns the absolute detail page URL of a listing.
func (c *Catalogue) ItemURL(listing extract.Listing) string {
	if strings.HasPrefix(listing.URL, "http://") || strings.HasPrefix(listing.URL, "https://") {
		return listing.URL
	}
	return c.cfg.Origin + listing.URL
}
