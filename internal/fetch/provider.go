// Package fetch turns URLs into awaitable requests served by a fixed pool of
// workers sharing one HTTP client.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
	"github.com/JakeFAU/bestiary-crawler/internal/queue/memory"
)

// ErrInvalidURL is returned by Fetch for anything that is not an absolute
// http or https URL.
var ErrInvalidURL = errors.New("invalid request url")

// Provider owns the request queue and the client shared by its workers.
type Provider struct {
	queue  *memory.Queue[pendingJob]
	client Client
	logger *zap.Logger
}

// NewProvider constructs a Provider around client.
func NewProvider(client Client, logger *zap.Logger) (*Provider, error) {
	if client == nil {
		return nil, errors.New("fetch client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Provider{
		queue:  memory.NewQueue[pendingJob](),
		client: client,
		logger: logger.Named("fetch"),
	}, nil
}

// Fetch returns an unsent request for rawURL. Nothing is queued until the
// request is first polled.
func (p *Provider) Fetch(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q: absolute http(s) url required", ErrInvalidURL, rawURL)
	}
	return newRequest(u.String(), p), nil
}

// Get fetches rawURL and waits for the response.
func (p *Provider) Get(ctx context.Context, rawURL string) (Response, error) {
	req, err := p.Fetch(rawURL)
	if err != nil {
		return Response{}, err
	}
	return req.Await(ctx)
}

// enqueue implements jobQueue for requests created by this provider.
func (p *Provider) enqueue(job pendingJob) error {
	if err := p.queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.url, err)
	}
	metrics.SetPendingRequests(p.queue.Len())
	return nil
}

// SpawnWorkers starts n workers serving this provider's queue. Workers exit
// once the provider is closed and its backlog drained, or when ctx ends.
func (p *Provider) SpawnWorkers(ctx context.Context, n int) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", n)
	}
	pool := &Pool{workers: make([]*Worker, 0, n)}
	for i := 0; i < n; i++ {
		name := WorkerName(i)
		w := &Worker{
			name:   name,
			queue:  p.queue,
			client: p.client,
			logger: p.logger.With(zap.String("worker", name)),
		}
		pool.workers = append(pool.workers, w)
		pool.wg.Add(1)
		go func() {
			defer pool.wg.Done()
			w.Run(ctx)
		}()
	}
	p.logger.Info("workers spawned", zap.Int("count", n))
	return pool, nil
}

// Pending reports how many requests are queued and not yet picked up.
func (p *Provider) Pending() int {
	return p.queue.Len()
}

// Close stops accepting requests. Queued requests are still served; requests
// polled for the first time after Close resolve with ErrRejected.
func (p *Provider) Close() {
	p.queue.Close()
}
