package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}

	ctx := context.Background()
	pool, err := ConnectPostgres(ctx, url, 4, 3, 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))))

	st := NewPostgresStore(pool, 0, 0)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, newTestPostgresStore(t))
}

func TestPostgresPurgeExpired(t *testing.T) {
	st := newTestPostgresStore(t)
	ctx := context.Background()

	secret := newTestSecret("")
	secret.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, st.Insert(ctx, secret))

	n, err := st.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = st.Get(ctx, secret.Slug)
	assert.ErrorIs(t, err, ErrNotFound)

	reuse := newTestSecret("")
	reuse.Slug = secret.Slug
	assert.ErrorIs(t, st.Insert(ctx, reuse), ErrSlugTaken)
}
