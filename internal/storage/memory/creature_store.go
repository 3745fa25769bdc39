package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
)

// CreatureStore keeps creature records in memory keyed by slug. Storing a
// slug twice replaces the earlier record.
type CreatureStore struct {
	mu      sync.RWMutex
	records map[string]catalogue.CreatureRecord
}

// NewCreatureStore builds an empty store.
func NewCreatureStore() *CreatureStore {
	return &CreatureStore{records: make(map[string]catalogue.CreatureRecord)}
}

// StoreCreature saves or replaces the record for record.Slug.
func (s *CreatureStore) StoreCreature(_ context.Context, record catalogue.CreatureRecord) error {
	if record.Slug == "" {
		return errors.New("record slug is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Slug] = record
	return nil
}

// GetCreature fetches a record by slug.
func (s *CreatureStore) GetCreature(_ context.Context, slug string) (catalogue.CreatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[slug]
	if !ok {
		return catalogue.CreatureRecord{}, errors.New("creature not found")
	}
	return record, nil
}

// ListCreatures returns every record ordered by slug.
func (s *CreatureStore) ListCreatures(_ context.Context) []catalogue.CreatureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalogue.CreatureRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
