package memory

import (
	"context"
	"errors"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "creatures", map[string]string{"slug": "16762-aboleth"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	if got := len(pub.Messages("")); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
	creatures := pub.Messages("creatures")
	if len(creatures) != 1 || creatures[0].Topic != "creatures" {
		t.Fatalf("topic filter failed: %+v", creatures)
	}

	creatures[0].Topic = "modified"
	if pub.Messages("creatures")[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("topic deleted")
	pub.FailWith(boom)
	if _, err := pub.Publish(context.Background(), "creatures", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	pub.FailWith(nil)
	if _, err := pub.Publish(context.Background(), "creatures", "x"); err != nil {
		t.Fatalf("expected publish to recover, got %v", err)
	}
	if got := len(pub.Messages("")); got != 1 {
		t.Fatalf("expected failed publish to be dropped, got %d messages", got)
	}
}
