// Package memory keeps fetched pages and creature records in process, for
// dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore stores pages in memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// PutObject persists the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = body
	return s.URI(path), nil
}

// Exists reports whether an object is stored at path.
func (s *BlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := s.Get(path)
	return ok, nil
}

// GetObject returns a copy of the object stored at path.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	body, ok := s.Get(path)
	if !ok {
		return nil, fmt.Errorf("object %q not found", path)
	}
	return body, nil
}

// URI returns the memory:// URI PutObject reports for path.
func (s *BlobStore) URI(path string) string {
	return "memory://" + path
}

// Get returns a copy of the object stored at path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), body...), true
}

// Paths lists stored object paths in sorted order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.data))
	for p := range s.data {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
