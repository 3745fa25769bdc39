package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRejected reports that the provider's request queue was already
	// closed when the request tried to enqueue itself.
	ErrRejected = errors.New("request rejected: provider closed")
	// ErrConsumed is returned by Poll once a request has already resolved.
	ErrConsumed = errors.New("request already resolved")
)

// Client performs one HTTP GET. Implementations must be safe for concurrent
// use by every worker in the pool.
type Client interface {
	Get(ctx context.Context, url string) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, url string) (Response, error)

// Get calls f.
func (f ClientFunc) Get(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// Response is the body and metadata of a completed GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r Response) Text() string {
	return string(r.Body)
}

// Result is the value a worker publishes into a request's result slot.
type Result struct {
	Response Response
	Err      error
}

// FetchError is a transport failure tagged with the URL that was requested.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch url %q: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
