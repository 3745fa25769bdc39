package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "monsters/16762-aboleth.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://monsters/16762-aboleth.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("monsters/16762-aboleth.html")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	stored[0] = 'X'
	again, _ := store.Get("monsters/16762-aboleth.html")
	if string(again) != "content" {
		t.Fatalf("expected Get to return a copy, got %q", again)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.PutObject(context.Background(), "", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
	if len(store.Paths()) != 0 {
		t.Fatalf("expected no objects, got %v", store.Paths())
	}
}

func TestBlobStorePathsSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.html", "a.html", "c.html"} {
		if _, err := store.PutObject(context.Background(), p, "text/html", strings.NewReader(p)); err != nil {
			t.Fatalf("PutObject(%s) error = %v", p, err)
		}
	}
	got := strings.Join(store.Paths(), ",")
	if got != "a.html,b.html,c.html" {
		t.Fatalf("Paths() = %s", got)
	}
	if _, ok := store.Get("missing.html"); ok {
		t.Fatal("expected missing object")
	}
}

func TestBlobStoreReadBack(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	exists, err := store.Exists(ctx, "pages/1.html")
	if err != nil || exists {
		t.Fatalf("Exists() = %v, %v before put", exists, err)
	}
	if _, err := store.GetObject(ctx, "pages/1.html"); err == nil {
		t.Fatal("expected error reading a missing object")
	}

	if _, err := store.PutObject(ctx, "pages/1.html", "text/html", strings.NewReader("listing")); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	exists, err = store.Exists(ctx, "pages/1.html")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v after put", exists, err)
	}
	body, err := store.GetObject(ctx, "pages/1.html")
	if err != nil || string(body) != "listing" {
		t.Fatalf("GetObject() = %q, %v", body, err)
	}
	if got := store.URI("pages/1.html"); got != "memory://pages/1.html" {
		t.Fatalf("URI() = %s", got)
	}
}
