package numbering

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "INV00001"},
		{42, "INV00042"},
		{99999, "INV99999"},
		{100000, "INV100000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(DefaultPrefix, 5, tt.n))
	}
}

func TestParse(t *testing.T) {
	n, ok := Parse("INV", "INV00042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Parse("INV", "XYZ00042")
	assert.False(t, ok)
	_, ok = Parse("INV", "INV")
	assert.False(t, ok)
	_, ok = Parse("INV", "INV-1")
	assert.False(t, ok)
}

type stubSequencer struct {
	next int64
	err  error
}

func (s *stubSequencer) Next(context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

func TestAllocator(t *testing.T) {
	a := NewAllocator(&stubSequencer{next: 6})
	got, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INV00007", got)

	boom := errors.New("down")
	_, err = NewAllocator(&stubSequencer{err: boom}).Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPostgresSequencer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sequence_counters (name, value) VALUES ($1, 1)")).
		WithArgs("invoice_number").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(12)))

	seq := NewPostgresSequencer(db, "invoice_number")
	v, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSequencer_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO sequence_counters").WillReturnError(errors.New("connection refused"))

	_, err = NewPostgresSequencer(db, "invoice_number").Next(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisSequencer(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	seq := NewRedisSequencer(client, "invoicedesk:invoice_number")

	wrote, err := seq.Seed(ctx, 41)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = seq.Seed(ctx, 5)
	require.NoError(t, err)
	assert.False(t, wrote, "existing counter must not be reset")

	v, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	got, err := mr.Get("invoicedesk:invoice_number")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestRedisSequencer_ConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	alloc := NewAllocator(NewRedisSequencer(client, "n"))

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := alloc.Next(ctx)
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	assert.True(t, seen["INV00001"])
	assert.True(t, seen["INV00020"])
}
