// Package app builds the crawler's long-lived services from configuration
// and tears them down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/api"
	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
	"github.com/JakeFAU/bestiary-crawler/internal/config"
	"github.com/JakeFAU/bestiary-crawler/internal/cookies"
	"github.com/JakeFAU/bestiary-crawler/internal/extract"
	"github.com/JakeFAU/bestiary-crawler/internal/fetch"
	collyfetcher "github.com/JakeFAU/bestiary-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/bestiary-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/bestiary-crawler/internal/policy/ratelimit"
	kafkaPublisher "github.com/JakeFAU/bestiary-crawler/internal/publisher/kafka"
	pubsubPublisher "github.com/JakeFAU/bestiary-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/bestiary-crawler/internal/queue/memory"
	"github.com/JakeFAU/bestiary-crawler/internal/storage/gcs"
	"github.com/JakeFAU/bestiary-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/bestiary-crawler/internal/storage/memory"
	"github.com/JakeFAU/bestiary-crawler/internal/storage/postgres"
	redisStorage "github.com/JakeFAU/bestiary-crawler/internal/storage/redis"
)

// App holds the fetch pool, the catalogue and their backing stores for one
// process run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	provider  *fetch.Provider
	pool      *fetch.Pool
	catalogue *catalogue.Catalogue

	stopWorkers context.CancelFunc
	stopServer  context.CancelFunc
	serverDone  chan error
	closers     []func()
	// abandoned is set once a crawl returns because its context ended.
	abandoned atomic.Bool
	closeOnce sync.Once
}

// Option customises App construction.
type Option func(*options)

type options struct {
	client    fetch.Client
	blobs     catalogue.BlobStore
	records   catalogue.RecordStore
	publisher catalogue.Publisher
}

// WithClient replaces the configured HTTP client.
func WithClient(client fetch.Client) Option {
	return func(o *options) { o.client = client }
}

// WithBlobStore replaces the configured page store.
func WithBlobStore(store catalogue.BlobStore) Option {
	return func(o *options) { o.blobs = store }
}

// WithRecordStore replaces the configured creature record store.
func WithRecordStore(store catalogue.RecordStore) Option {
	return func(o *options) { o.records = store }
}

// WithPublisher replaces the configured creature event publisher.
func WithPublisher(pub catalogue.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// New loads cookies, builds the client and stores, and starts the worker
// pool. Any failure here is a startup failure and nothing is left running.
// The workers stop when ctx ends.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	jar, err := cookies.Load(cfg.Cookies.Path)
	if err != nil {
		return a, fmt.Errorf("load cookies: %w", err)
	}
	logger.Info("cookies loaded", zap.String("path", cfg.Cookies.Path), zap.Int("count", len(jar)))

	client := o.client
	if client == nil {
		client, err = a.buildClient(jar)
		if err != nil {
			return a, err
		}
	}
	if cfg.Fetch.RatePerSecond > 0 {
		limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.RatePerSecond, Burst: cfg.Fetch.Burst})
		client = limiter.Wrap(client)
	}

	a.provider, err = fetch.NewProvider(client, logger)
	if err != nil {
		return a, fmt.Errorf("create fetch provider: %w", err)
	}
	workerCtx, stopWorkers := context.WithCancel(ctx)
	a.stopWorkers = stopWorkers
	a.pool, err = a.provider.SpawnWorkers(workerCtx, cfg.Fetch.Workers)
	if err != nil {
		return a, fmt.Errorf("spawn workers: %w", err)
	}

	catOpts := []catalogue.Option{}
	blobs := o.blobs
	if blobs == nil {
		blobs, err = a.buildBlobStore(ctx)
		if err != nil {
			return a, err
		}
	}
	catOpts = append(catOpts, catalogue.WithBlobStore(blobs))
	if cfg.Catalogue.Resume {
		catOpts = append(catOpts, catalogue.WithResume())
	}
	records := o.records
	if records == nil && (cfg.DB.DSN != "" || cfg.Redis.Addr != "") {
		records, err = a.buildRecordStore(ctx)
		if err != nil {
			return a, err
		}
	}
	if records != nil {
		catOpts = append(catOpts, catalogue.WithRecordStore(records))
	}
	publisher, topic := o.publisher, cfg.PubSub.Topic
	if len(cfg.Kafka.Brokers) > 0 {
		topic = cfg.Kafka.Topic
	}
	if publisher == nil && (cfg.PubSub.ProjectID != "" || len(cfg.Kafka.Brokers) > 0) {
		publisher, err = a.buildPublisher(ctx)
		if err != nil {
			return a, err
		}
	}
	if publisher != nil {
		catOpts = append(catOpts, catalogue.WithPublisher(publisher, topic))
	}

	a.catalogue, err = catalogue.New(catalogue.Config{
		Origin:      cfg.Catalogue.Origin,
		ListingPath: cfg.Catalogue.ListingPath,
		Sort:        cfg.Catalogue.Sort,
		ContentType: cfg.Storage.ContentType,
	}, a.provider, logger, catOpts...)
	if err != nil {
		return a, fmt.Errorf("create catalogue: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		a.startServer(cfg.Metrics.Addr)
	}
	logger.Info("crawler ready",
		zap.String("backend", cfg.Fetch.Backend),
		zap.Strings("workers", a.pool.Names()),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("resume", cfg.Catalogue.Resume),
	)
	return a, nil
}

func (a *App) buildClient(jar []*http.Cookie) (fetch.Client, error) {
	switch a.cfg.Fetch.Backend {
	case config.BackendHeadless:
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: a.cfg.NavigationTimeout(),
			Origin:            a.cfg.Catalogue.Origin,
			Cookies:           jar,
			Headers:           a.cfg.FetchHeaders(),
		})
		if err != nil {
			return nil, fmt.Errorf("create headless client: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		return f, nil
	default:
		f, err := collyfetcher.New(collyfetcher.Config{
			UserAgent:    a.cfg.Fetch.UserAgent,
			Timeout:      a.cfg.FetchTimeout(),
			MaxBodyBytes: a.cfg.Fetch.MaxBodyBytes,
			Origin:       a.cfg.Catalogue.Origin,
			Cookies:      jar,
			Headers:      a.cfg.FetchHeaders(),
		})
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		return f, nil
	}
}

func (a *App) buildBlobStore(ctx context.Context) (catalogue.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageMemory:
		return memoryStorage.NewBlobStore(), nil
	case config.StorageGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close gcs store", zap.Error(err))
			}
		})
		return store, nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}
		return store, nil
	}
}

func (a *App) buildRecordStore(ctx context.Context) (catalogue.RecordStore, error) {
	if a.cfg.DB.DSN == "" {
		store, err := redisStorage.NewCreatureStore(ctx, redisStorage.Config{
			Addr:   a.cfg.Redis.Addr,
			Prefix: a.cfg.Redis.Prefix,
			TTL:    a.cfg.RedisTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("create redis creature store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close redis store", zap.Error(err))
			}
		})
		return store, nil
	}
	store, err := postgres.NewCreatureStore(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("create creature store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context) (catalogue.Publisher, error) {
	if len(a.cfg.Kafka.Brokers) > 0 {
		pub, err := kafkaPublisher.New(a.cfg.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				a.logger.Warn("close kafka publisher", zap.Error(err))
			}
		})
		return pub, nil
	}
	pub, err := pubsubPublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("close publisher", zap.Error(err))
		}
	})
	return pub, nil
}

func (a *App) startServer(addr string) {
	srvCtx, stop := context.WithCancel(context.Background())
	a.stopServer = stop
	a.serverDone = make(chan error, 1)
	server := api.NewServer(a, a.logger)
	go func() {
		a.serverDone <- server.Serve(srvCtx, addr)
	}()
}

// Catalogue returns the crawl orchestrator.
func (a *App) Catalogue() *catalogue.Catalogue {
	return a.catalogue
}

// Snapshot reports the pool state for the operator routes.
func (a *App) Snapshot() api.Snapshot {
	if a.pool == nil || a.provider == nil {
		return api.Snapshot{}
	}
	return api.Snapshot{
		Ready:   true,
		Workers: a.pool.Names(),
		Pending: a.provider.Pending(),
	}
}

// ItemURLs crawls the listing pages in r (the whole catalogue when nil) and
// returns the absolute detail URL of every row found, with the per-page
// errors encountered on the way.
func (a *App) ItemURLs(ctx context.Context, r *catalogue.PageRange) ([]string, []error, error) {
	defer a.noteAbandoned(ctx)
	listings := memory.NewQueue[extract.Listing]()
	errs, err := a.catalogue.FetchListings(ctx, r, listings)
	listings.Close()
	if err != nil {
		return nil, nil, err
	}
	var urls []string
	for {
		listing, err := listings.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				errs = append(errs, err)
			}
			break
		}
		urls = append(urls, a.catalogue.ItemURL(listing))
	}
	return urls, errs, nil
}

// Creatures crawls the listing pages in r and, as rows arrive, fetches the
// detail page of every row whose name is in names (all rows when names is
// empty).
func (a *App) Creatures(ctx context.Context, r *catalogue.PageRange, names []string) ([]extract.Creature, []error, error) {
	defer a.noteAbandoned(ctx)
	listings := memory.NewQueue[extract.Listing]()
	type listingOutcome struct {
		errs []error
		err  error
	}
	done := make(chan listingOutcome, 1)
	go func() {
		errs, err := a.catalogue.FetchListings(ctx, r, listings)
		listings.Close()
		done <- listingOutcome{errs: errs, err: err}
	}()

	creatures, creatureErrs := a.catalogue.FetchCreatures(ctx, listings, catalogue.NameFilter(names...))
	outcome := <-done
	if outcome.err != nil {
		return nil, nil, outcome.err
	}
	return creatures, append(outcome.errs, creatureErrs...), nil
}

func (a *App) noteAbandoned(ctx context.Context) {
	if ctx.Err() != nil {
		a.abandoned.Store(true)
	}
}

// Close stops accepting requests and releases clients and stores. After a
// normal run the workers drain the backlog first. When a crawl was cut short
// by its context the queued requests have no one waiting on them, so the
// workers are stopped without serving them.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.provider != nil {
		a.provider.Close()
	}
	if a.stopWorkers != nil && a.abandoned.Load() {
		a.logger.Info("abandoning queued requests", zap.Int("pending", a.provider.Pending()))
		a.stopWorkers()
	}
	if a.pool != nil {
		a.pool.Wait()
	}
	if a.stopWorkers != nil {
		a.stopWorkers()
	}
	if a.stopServer != nil {
		a.stopServer()
		if err := <-a.serverDone; err != nil {
			a.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
