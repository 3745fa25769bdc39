package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoClient() Client {
	return ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		return Response{URL: rawURL, StatusCode: 200, Body: []byte(rawURL)}, nil
	})
}

func newTestProvider(t *testing.T, client Client, workers int) (*Provider, *Pool) {
	t.Helper()
	p, err := NewProvider(client, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	pool, err := p.SpawnWorkers(ctx, workers)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		cancel()
		pool.Wait()
	})
	return p, pool
}

func TestNewProviderRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(nil, zap.NewNop())
	require.Error(t, err)
}

func TestSpawnWorkersRejectsZero(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(echoClient(), nil)
	require.NoError(t, err)
	_, err = p.SpawnWorkers(context.Background(), 0)
	require.Error(t, err)
}

func TestWorkerNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "alpha", WorkerName(0))
	require.Equal(t, "panda", WorkerName(15))
	require.Equal(t, "worker-16", WorkerName(16))

	_, pool := newTestProvider(t, echoClient(), 3)
	require.Equal(t, 3, pool.Size())
	require.Equal(t, []string{"alpha", "bravo", "canon"}, pool.Names())
}

func TestFetchValidatesURL(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(echoClient(), nil)
	require.NoError(t, err)
	for _, raw := range []string{"", "/monsters", "ftp://example.com/x", "https://", "::bad"} {
		_, err := p.Fetch(raw)
		require.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	req, err := p.Fetch("https://example.com/monsters?page=1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/monsters?page=1", req.URL())
}

func TestFetchIsLazy(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(echoClient(), nil)
	require.NoError(t, err)
	req, err := p.Fetch("https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 0, p.Pending())

	_, ready := req.Poll(func() {})
	require.False(t, ready)
	_, _ = req.Poll(func() {})
	require.Equal(t, 1, p.Pending())
}

func TestProviderGet(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, echoClient(), 2)
	resp, err := p.Get(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "https://example.com/a", resp.Text())
}

func TestTransportErrorIsTagged(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	client := ClientFunc(func(_ context.Context, _ string) (Response, error) {
		return Response{}, cause
	})
	p, _ := newTestProvider(t, client, 1)

	_, err := p.Get(context.Background(), "https://example.com/pX")
	require.ErrorIs(t, err, cause)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "https://example.com/pX", fe.URL)
}

func TestClientPanicIsRecovered(t *testing.T) {
	t.Parallel()

	client := ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		if rawURL == "https://example.com/boom" {
			panic("parser exploded")
		}
		return Response{URL: rawURL, StatusCode: 200}, nil
	})
	p, _ := newTestProvider(t, client, 1)

	_, err := p.Get(context.Background(), "https://example.com/boom")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, err.Error(), "parser exploded")

	// The single worker survived and keeps serving.
	resp, err := p.Get(context.Background(), "https://example.com/fine")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestRequestsAfterCloseAreRejected(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, echoClient(), 1)
	p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Get(ctx, "https://example.com/late")
	require.ErrorIs(t, err, ErrRejected)
}

func TestCloseDrainsBacklog(t *testing.T) {
	t.Parallel()

	var served atomic.Int32
	client := ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		served.Add(1)
		return Response{URL: rawURL}, nil
	})
	p, err := NewProvider(client, nil)
	require.NoError(t, err)

	reqs := make([]*Request, 0, 10)
	for i := 0; i < 10; i++ {
		req, err := p.Fetch(fmt.Sprintf("https://example.com/%d", i))
		require.NoError(t, err)
		req.Start()
		reqs = append(reqs, req)
	}
	p.Close()

	pool, err := p.SpawnWorkers(context.Background(), 2)
	require.NoError(t, err)
	pool.Wait()
	require.Equal(t, int32(10), served.Load())

	for _, req := range reqs {
		_, err := req.Await(context.Background())
		require.NoError(t, err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers, total = 3, 30
	var inFlight, maxSeen atomic.Int32
	client := ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		n := inFlight.Add(1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Response{URL: rawURL}, nil
	})
	p, _ := newTestProvider(t, client, workers)

	reqs := make([]*Request, 0, total)
	for i := 0; i < total; i++ {
		req, err := p.Fetch(fmt.Sprintf("https://example.com/item/%d", i))
		require.NoError(t, err)
		req.Start()
		reqs = append(reqs, req)
	}
	for i, req := range reqs {
		resp, err := req.Await(context.Background())
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("https://example.com/item/%d", i), resp.URL)
	}
	require.LessOrEqual(t, maxSeen.Load(), int32(workers))
	require.Equal(t, int32(workers), maxSeen.Load())
}

func TestSlowRequestDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := ClientFunc(func(ctx context.Context, rawURL string) (Response, error) {
		u, _ := url.Parse(rawURL)
		if u.Path == "/p3" {
			select {
			case <-release:
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}
		return Response{URL: rawURL, StatusCode: 200, Body: []byte(u.Path)}, nil
	})
	p, _ := newTestProvider(t, client, 2)

	reqs := make(map[string]*Request)
	for _, path := range []string{"/p1", "/p2", "/p3", "/p4", "/p5"} {
		req, err := p.Fetch("https://example.com" + path)
		require.NoError(t, err)
		req.Start()
		reqs[path] = req
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, path := range []string{"/p1", "/p2", "/p4", "/p5"} {
		resp, err := reqs[path].Await(ctx)
		require.NoError(t, err, path)
		assert.Equal(t, path, resp.Text())
	}

	close(release)
	resp, err := reqs["/p3"].Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "/p3", resp.Text())
}

func TestDroppedRequestDoesNotDisturbPool(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		if rawURL == "https://example.com/slow" {
			<-release
		}
		return Response{URL: rawURL}, nil
	})
	p, _ := newTestProvider(t, client, 1)

	slow, err := p.Fetch("https://example.com/slow")
	require.NoError(t, err)
	slow.Start()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := slow.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	}()
	require.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
	close(release)

	resp, err := p.Get(context.Background(), "https://example.com/next")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/next", resp.URL)
}

func TestWorkersExitOnContextCancel(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(echoClient(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	pool, err := p.SpawnWorkers(ctx, 4)
	require.NoError(t, err)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after cancel")
	}
}

func TestCanceledWorkersLeaveBacklogUnserved(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	client := ClientFunc(func(_ context.Context, rawURL string) (Response, error) {
		calls.Add(1)
		<-release
		return Response{URL: rawURL, StatusCode: 200}, nil
	})
	p, err := NewProvider(client, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	pool, err := p.SpawnWorkers(ctx, 2)
	require.NoError(t, err)

	for i := range 10 {
		req, err := p.Fetch(fmt.Sprintf("https://example.com/p%d", i))
		require.NoError(t, err)
		req.Start()
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	close(release)
	pool.Wait()
	p.Close()

	assert.Equal(t, int32(2), calls.Load(), "queued jobs are not served after cancel")
	assert.Equal(t, 8, p.Pending())
}
