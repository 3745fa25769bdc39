package catalogue

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// joiner collects the outcomes of concurrently running tasks. One failing
// task never cancels the others; results are kept in completion order.
type joiner[T any] struct {
	group errgroup.Group
	mu    sync.Mutex
	items []T
	errs  []error
}

// Go starts task.
func (j *joiner[T]) Go(task func() (T, error)) {
	j.group.Go(func() error {
		item, err := task()
		j.mu.Lock()
		defer j.mu.Unlock()
		if err != nil {
			j.errs = append(j.errs, err)
			return nil
		}
		j.items = append(j.items, item)
		return nil
	})
}

// Wait blocks until every task has finished.
func (j *joiner[T]) Wait() ([]T, []error) {
	_ = j.group.Wait()
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.items, j.errs
}

// joinAll runs every task and waits for all of them.
func joinAll[T any](tasks []func() (T, error)) ([]T, []error) {
	var j joiner[T]
	for _, task := range tasks {
		j.Go(task)
	}
	return j.Wait()
}
