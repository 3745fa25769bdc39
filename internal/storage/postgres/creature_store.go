// Package postgres provides Postgres-backed persistence for creature records.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bestiary-crawler/internal/catalogue"
)

const defaultTable = "creatures"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for creature rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CreatureStore upserts creature rows into Postgres, one row per slug.
type CreatureStore struct {
	pool  execCloser
	table string
}

// NewCreatureStore connects a pool using cfg.
func NewCreatureStore(ctx context.Context, cfg Config) (*CreatureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CreatureStore{pool: pool, table: table}, nil
}

// NewCreatureStoreWithPool constructs a store from an existing pool.
func NewCreatureStoreWithPool(pool execCloser, table string) (*CreatureStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &CreatureStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *CreatureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreCreature inserts the record, replacing any earlier row for the same
// slug.
func (s *CreatureStore) StoreCreature(ctx context.Context, record catalogue.CreatureRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("creature store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if record.Slug == "" {
		return fmt.Errorf("record slug is required")
	}
	doc, err := json.Marshal(record.Creature)
	if err != nil {
		return fmt.Errorf("marshal creature: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	slug,
	name,
	source_book,
	challenge_rating,
	armor_class,
	hit_points,
	blob_uri,
	content_hash,
	fetched_at,
	creature
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (slug) DO UPDATE SET
	id = EXCLUDED.id,
	name = EXCLUDED.name,
	source_book = EXCLUDED.source_book,
	challenge_rating = EXCLUDED.challenge_rating,
	armor_class = EXCLUDED.armor_class,
	hit_points = EXCLUDED.hit_points,
	blob_uri = EXCLUDED.blob_uri,
	content_hash = EXCLUDED.content_hash,
	fetched_at = EXCLUDED.fetched_at,
	creature = EXCLUDED.creature`, s.table)

	c := record.Creature
	args := []any{
		record.ID,
		record.Slug,
		c.Name,
		c.SourceBook,
		challengeRating(c.ChallengeRating),
		c.ArmorClass,
		c.HitPoints,
		record.BlobURI,
		record.ContentHash,
		record.FetchedAt,
		doc,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert creature: %w", err)
	}
	return nil
}

func challengeRating(cr *int) any {
	if cr == nil {
		return nil
	}
	return *cr
}
