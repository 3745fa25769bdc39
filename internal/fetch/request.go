package fetch

import (
	"context"
	"fmt"
)

type jobQueue interface {
	enqueue(job pendingJob) error
}

type requestState int

const (
	stateUnsent requestState = iota
	stateSent
	stateDone
)

// Request is the eventual result of fetching one URL. Nothing is queued when
// a Request is created; the first Poll enqueues exactly one job, and later
// polls only inspect the result slot. A Request has a single owner and Poll
// must not be called concurrently.
type Request struct {
	url   string
	queue jobQueue
	state requestState
	slot  *resultSlot
}

func newRequest(url string, queue jobQueue) *Request {
	return &Request{url: url, queue: queue}
}

// URL returns the target of the request.
func (r *Request) URL() string {
	return r.url
}

// Poll advances the request. It reports false while the fetch is pending;
// wake is invoked once when a worker publishes the result so the caller can
// poll again. Once Poll has returned true it keeps returning a FetchError
// wrapping ErrConsumed and never enqueues or wakes again.
func (r *Request) Poll(wake func()) (Result, bool) {
	switch r.state {
	case stateDone:
		return Result{Err: &FetchError{URL: r.url, Err: ErrConsumed}}, true
	case stateUnsent:
		r.send(wake)
	}
	res, ready := r.slot.poll(wake)
	if !ready {
		return Result{}, false
	}
	r.state = stateDone
	r.slot = nil
	return res, true
}

// send performs the unsent -> sent transition. A closed queue fills the slot
// with a rejection instead of leaving the request unresolved.
func (r *Request) send(wake func()) {
	r.slot = newResultSlot(wake)
	r.state = stateSent
	job := pendingJob{url: r.url, slot: r.slot}
	if err := r.queue.enqueue(job); err != nil {
		job.slot.put(Result{Err: &FetchError{URL: r.url, Err: fmt.Errorf("%w: %v", ErrRejected, err)}})
	}
}

// Start enqueues the request without waiting for it. It is equivalent to a
// first Poll whose result is left in the slot for a later Poll or Await.
func (r *Request) Start() {
	if r.state == stateUnsent {
		r.send(nil)
	}
}

// Await polls until the request resolves or ctx ends. Returning early on ctx
// abandons the request; a worker may still complete it and the result is
// discarded.
func (r *Request) Await(ctx context.Context) (Response, error) {
	signal := make(chan struct{}, 1)
	wake := func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
	for {
		if res, ready := r.Poll(wake); ready {
			return res.Response, res.Err
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return Response{}, fmt.Errorf("await %s: %w", r.url, ctx.Err())
		}
	}
}
