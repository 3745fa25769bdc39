package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bestiary-crawler/internal/metrics"
	"github.com/JakeFAU/bestiary-crawler/internal/queue/memory"
)

var workerNames = []string{
	"alpha", "bravo", "canon", "delta",
	"ephor", "flump", "gnome", "hedge",
	"igloo", "julep", "knoll", "liege",
	"magic", "novel", "omega", "panda",
}

// WorkerName returns the log name of the worker at idx.
func WorkerName(idx int) string {
	if idx >= 0 && idx < len(workerNames) {
		return workerNames[idx]
	}
	return "worker-" + strconv.Itoa(idx)
}

// Worker consumes pending jobs from the provider queue and serves them with
// the shared client.
type Worker struct {
	name   string
	queue  *memory.Queue[pendingJob]
	client Client
	logger *zap.Logger
}

// Name returns the worker's log name.
func (w *Worker) Name() string {
	return w.name
}

// Run serves jobs until the queue is closed and drained or ctx ends. Jobs
// still queued when ctx ends are left unserved.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		metrics.SetPendingRequests(w.queue.Len())
		w.serve(ctx, job)
	}
}

func (w *Worker) serve(ctx context.Context, job pendingJob) {
	site := siteOf(job.url)
	start := time.Now()
	metrics.IncInFlight()
	resp, err := w.get(ctx, job.url)
	metrics.DecInFlight()

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: job.url, Err: err}
		}
		w.logger.Warn("fetch failed", zap.String("url", job.url), zap.Error(err))
	} else {
		w.logger.Debug("fetched",
			zap.String("url", job.url),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(resp.Body)),
		)
	}
	metrics.ObserveFetch(site, outcome, len(resp.Body), time.Since(start))

	if !job.resolve(Result{Response: resp, Err: err}) {
		w.logger.Error("result slot already filled", zap.String("url", job.url))
	}
}

// get calls the client, converting a panic into an error so one bad page
// cannot take a worker down.
func (w *Worker) get(ctx context.Context, rawURL string) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{}
			err = &FetchError{URL: rawURL, Err: fmt.Errorf("client panic: %v", r)}
		}
	}()
	return w.client.Get(ctx, rawURL)
}

// Pool is a running set of workers.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// Size reports how many workers were started.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Names lists worker names in spawn order.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.workers))
	for _, w := range p.workers {
		names = append(names, w.Name())
	}
	return names
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
