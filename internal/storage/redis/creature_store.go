// Package redis caches parsed creatures in Redis, keyed by slug.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
)

const defaultPrefix = "creature:"

// Config describes the Redis connection.
type Config struct {
	Addr   string
	Prefix string
	// TTL of zero keeps records forever.
	TTL time.Duration
}

type cmdable interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Close() error
}

// CreatureStore stores one JSON document per creature plus a set of known
// slugs.
type CreatureStore struct {
	client cmdable
	prefix string
	ttl    time.Duration
}

// NewCreatureStore connects to Redis and checks it answers.
func NewCreatureStore(ctx context.Context, cfg Config) (*CreatureStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newCreatureStore(client, cfg), nil
}

func newCreatureStore(client cmdable, cfg Config) *CreatureStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CreatureStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

// Close closes the Redis client.
func (s *CreatureStore) Close() error {
	return s.client.Close()
}

// StoreCreature writes record under its slug, replacing any previous value.
func (s *CreatureStore) StoreCreature(ctx context.Context, record catalogue.CreatureRecord) error {
	if record.Slug == "" {
		return errors.New("record slug is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(record.Slug), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", record.Slug, err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), record.Slug).Err(); err != nil {
		return fmt.Errorf("index %s: %w", record.Slug, err)
	}
	return nil
}

// GetCreature reads the record stored for slug.
func (s *CreatureStore) GetCreature(ctx context.Context, slug string) (catalogue.CreatureRecord, bool, error) {
	val, err := s.client.Get(ctx, s.key(slug)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return catalogue.CreatureRecord{}, false, nil
		}
		return catalogue.CreatureRecord{}, false, fmt.Errorf("get %s: %w", slug, err)
	}
	var record catalogue.CreatureRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return catalogue.CreatureRecord{}, false, fmt.Errorf("decode %s: %w", slug, err)
	}
	return record, true, nil
}

// Slugs lists every slug ever stored, sorted. Expired records keep their slug.
func (s *CreatureStore) Slugs(ctx context.Context) ([]string, error) {
	slugs, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list slugs: %w", err)
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (s *CreatureStore) key(slug string) string {
	return s.prefix + slug
}

func (s *CreatureStore) indexKey() string {
	return s.prefix + "slugs"
}
