// Package numbering allocates human-readable invoice numbers.
//
// Numbers come from a monotonically increasing counter that is incremented
// atomically by the backing store, so two concurrent allocations never see
// the same value. Gaps are possible (an allocated number whose insert later
// fails is not reused).
package numbering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every invoice number.
const DefaultPrefix = "INV"

// Sequencer hands out strictly increasing positive integers.
type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

// Allocator turns sequence values into formatted invoice numbers.
type Allocator struct {
	seq    Sequencer
	prefix string
	width  int
}

// NewAllocator returns an allocator producing numbers like INV00042.
func NewAllocator(seq Sequencer) *Allocator {
	return &Allocator{seq: seq, prefix: DefaultPrefix, width: 5}
}

// Next allocates the next invoice number.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	n, err := a.seq.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate invoice number: %w", err)
	}
	return Format(a.prefix, a.width, n), nil
}

// Format zero-pads n to width digits. Wider values are not truncated.
func Format(prefix string, width int, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// Parse extracts the sequence value from a formatted number.
func Parse(prefix, number string) (int64, bool) {
	digits, ok := strings.CutPrefix(number, prefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DBTX is the subset of *sql.DB and *sql.Tx used by PostgresSequencer.
type DBTX interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresSequencer keeps the counter in a row of the sequence_counters
// table and increments it with a single upsert.
type PostgresSequencer struct {
	db   DBTX
	name string
}

// NewPostgresSequencer returns a sequencer for the named counter row.
func NewPostgresSequencer(db DBTX, name string) *PostgresSequencer {
	return &PostgresSequencer{db: db, name: name}
}

const nextCounterSQL = `
INSERT INTO sequence_counters (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = sequence_counters.value + 1
RETURNING value`

// Next implements Sequencer.
func (s *PostgresSequencer) Next(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, nextCounterSQL, s.name).Scan(&v); err != nil {
		return 0, fmt.Errorf("increment counter %q: %w", s.name, err)
	}
	return v, nil
}

// RedisSequencer increments a Redis key.
type RedisSequencer struct {
	client *redis.Client
	key    string
}

// NewRedisSequencer returns a sequencer backed by INCR on key.
func NewRedisSequencer(client *redis.Client, key string) *RedisSequencer {
	return &RedisSequencer{client: client, key: key}
}

// Seed sets the counter to floor unless it already exists, so the first
// allocation after seeding returns floor+1. It reports whether it wrote.
func (s *RedisSequencer) Seed(ctx context.Context, floor int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key, floor, 0).Result()
	if err != nil {
		return false, fmt.Errorf("seed counter %q: %w", s.key, err)
	}
	return ok, nil
}

// Next implements Sequencer.
func (s *RedisSequencer) Next(ctx context.Context) (int64, error) {
	v, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter %q: %w", s.key, err)
	}
	if v <= 0 {
		return 0, errors.New("counter returned a non-positive value")
	}
	return v, nil
}
