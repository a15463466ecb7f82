package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret.link/internal/models"
)

// runStoreSuite checks the behaviour every Store backend must share.
func runStoreSuite(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		secret := newTestSecret("")
		secret.HasPassword = true
		secret.PasswordHash = "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"
		secret.EncryptionKey = "a2V5"
		require.NoError(t, st.Insert(ctx, secret))

		got, err := st.Get(ctx, secret.Slug)
		require.NoError(t, err)
		assert.Equal(t, secret.ID, got.ID)
		assert.Equal(t, secret.Ciphertext, got.Ciphertext)
		assert.Equal(t, secret.Nonce, got.Nonce)
		assert.Equal(t, secret.PasswordHash, got.PasswordHash)
		assert.Equal(t, secret.EncryptionKey, got.EncryptionKey)
		assert.True(t, got.OneTime)
		assert.False(t, got.Viewed)
		assert.WithinDuration(t, secret.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := st.Get(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("slug is never reused", func(t *testing.T) {
		secret := newTestSecret("")
		require.NoError(t, st.Insert(ctx, secret))

		dup := newTestSecret("")
		dup.Slug = secret.Slug
		assert.ErrorIs(t, st.Insert(ctx, dup), ErrSlugTaken)

		require.NoError(t, st.Delete(ctx, secret.Slug))
		assert.ErrorIs(t, st.Insert(ctx, dup), ErrSlugTaken)

		_, err := st.Get(ctx, secret.Slug)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mark viewed once", func(t *testing.T) {
		secret := newTestSecret("")
		require.NoError(t, st.Insert(ctx, secret))

		first, err := st.MarkViewed(ctx, secret.Slug)
		require.NoError(t, err)
		assert.True(t, first)

		again, err := st.MarkViewed(ctx, secret.Slug)
		require.NoError(t, err)
		assert.False(t, again)

		got, err := st.Get(ctx, secret.Slug)
		require.NoError(t, err)
		assert.True(t, got.Viewed)

		_, err = st.MarkViewed(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent mark viewed has one winner", func(t *testing.T) {
		secret := newTestSecret("")
		require.NoError(t, st.Insert(ctx, secret))

		const callers = 32
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				first, err := st.MarkViewed(ctx, secret.Slug)
				assert.NoError(t, err)
				if first {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("delete", func(t *testing.T) {
		secret := newTestSecret("")
		require.NoError(t, st.Insert(ctx, secret))
		require.NoError(t, st.Delete(ctx, secret.Slug))
		assert.ErrorIs(t, st.Delete(ctx, secret.Slug), ErrNotFound)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		base := time.Now().UTC().Truncate(time.Millisecond)

		var slugs []string
		for i := range 3 {
			secret := newTestSecret(owner)
			secret.CreatedAt = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, st.Insert(ctx, secret))
			slugs = append(slugs, secret.Slug)
		}
		require.NoError(t, st.Insert(ctx, newTestSecret("someone-else-"+uuid.NewString())))
		require.NoError(t, st.Insert(ctx, newTestSecret("")))

		list, err := st.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, slugs[2], list[0].Slug)
		assert.Equal(t, slugs[1], list[1].Slug)
		assert.Equal(t, slugs[0], list[2].Slug)

		require.NoError(t, st.Delete(ctx, slugs[1]))
		list, err = st.ListByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		empty, err := st.ListByOwner(ctx, "nobody-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func newTestSecret(owner string) *models.Secret {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Secret{
		ID:         uuid.NewString(),
		Slug:       uuid.NewString()[:12],
		Ciphertext: "Y2lwaGVydGV4dA==",
		Nonce:      "bm9uY2Vub25jZTEy",
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
		OneTime:    true,
		UserID:     owner,
	}
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore(0, 0)
	t.Cleanup(func() { _ = st.Close() })
	runStoreSuite(t, st)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	st := NewMemoryStore(0, 0)
	defer st.Close()

	secret := newTestSecret("")
	require.NoError(t, st.Insert(context.Background(), secret))
	secret.Viewed = true

	got, err := st.Get(context.Background(), secret.Slug)
	require.NoError(t, err)
	assert.False(t, got.Viewed)

	got.Ciphertext = "changed"
	again, err := st.Get(context.Background(), secret.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Y2lwaGVydGV4dA==", again.Ciphertext)
}

func TestMemoryStoreCleanup(t *testing.T) {
	st := NewMemoryStore(0, time.Hour)
	defer st.Close()
	ctx := context.Background()
	now := time.Now()

	stale := newTestSecret("")
	stale.ExpiresAt = now.Add(-2 * time.Hour)
	recent := newTestSecret("")
	recent.ExpiresAt = now.Add(-30 * time.Minute)
	require.NoError(t, st.Insert(ctx, stale))
	require.NoError(t, st.Insert(ctx, recent))

	st.cleanup(now)

	_, err := st.Get(ctx, stale.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, recent.Slug)
	assert.NoError(t, err)

	reuse := newTestSecret("")
	reuse.Slug = stale.Slug
	assert.ErrorIs(t, st.Insert(ctx, reuse), ErrSlugTaken, fmt.Sprintf("slug %s reissued after purge", stale.Slug))
}
