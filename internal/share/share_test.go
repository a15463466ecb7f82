package share_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret.link/internal/crypto"
	"secret.link/internal/password"
	"secret.link/internal/secrets"
	"secret.link/internal/share"
	"secret.link/internal/store"
)

func newSharer(t *testing.T) (*share.Sharer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(0, 0)
	t.Cleanup(func() { _ = st.Close() })

	hasher := password.NewHasher(password.Params{Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16})
	return share.New(secrets.New(st, hasher)), st
}

func TestReferenceURL(t *testing.T) {
	t.Parallel()
	ref := share.Reference{Slug: "AbC_12-xyZ09", Key: "k+y/abc="}

	link := ref.URL("https://share.example.com/")
	assert.Equal(t, "https://share.example.com/s/AbC_12-xyZ09#k+y/abc=", link)

	parsed, err := share.ParseReference(link)
	require.NoError(t, err)
	assert.Equal(t, ref.Slug, parsed.Slug)
	assert.Equal(t, ref.Key, parsed.Key)

	noKey := share.Reference{Slug: "slug"}.URL("http://localhost:8080")
	assert.Equal(t, "http://localhost:8080/s/slug", noKey)
}

func TestParseReferenceErrors(t *testing.T) {
	t.Parallel()
	for _, link := range []string{
		"https://share.example.com/",
		"https://share.example.com/s/",
		"https://share.example.com/s/a/b#key",
		"://broken",
	} {
		_, err := share.ParseReference(link)
		assert.ErrorIs(t, err, share.ErrInvalidReference, link)
	}
}

func TestCreateKeepsKeyOffServer(t *testing.T) {
	t.Parallel()
	s, st := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "hello", share.Options{TTL: time.Hour, OneTime: true})
	require.NoError(t, err)
	require.NotEmpty(t, ref.Key)

	stored, err := st.Get(ctx, ref.Slug)
	require.NoError(t, err)
	assert.Empty(t, stored.EncryptionKey)
	assert.NotContains(t, stored.Ciphertext, ref.Key)
	assert.NotContains(t, stored.Nonce, ref.Key)

}

func TestCreateWithKeyCustody(t *testing.T) {
	t.Parallel()
	s, st := newSharer(t)
	ctx := context.Background()

	custody, err := s.Create(ctx, "hello", share.Options{TTL: time.Hour, StoreKey: true, OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, custody.Key)
	assert.Equal(t, "https://share.example.com/s/"+custody.Slug, custody.URL("https://share.example.com"))

	stored, err := st.Get(ctx, custody.Slug)
	require.NoError(t, err)
	require.NotEmpty(t, stored.EncryptionKey)
	assert.Equal(t, "alice", stored.UserID)

	_, err = s.Open(ctx, custody, "")
	assert.ErrorIs(t, err, secrets.ErrDecryption)

	custody.Key = stored.EncryptionKey
	plaintext, err := s.Open(ctx, custody, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)
}

func TestOpenOneTime(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "hello", share.Options{TTL: time.Hour, OneTime: true})
	require.NoError(t, err)

	plaintext, err := s.Open(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)

	_, err = s.Open(ctx, ref, "")
	assert.ErrorIs(t, err, secrets.ErrConsumed)
}

func TestOpenReusable(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "again and again", share.Options{TTL: time.Hour})
	require.NoError(t, err)

	for range 3 {
		plaintext, err := s.Open(ctx, ref, "")
		require.NoError(t, err)
		assert.Equal(t, "again and again", plaintext)
	}
}

func TestOpenWithPassword(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "guarded", share.Options{TTL: time.Hour, OneTime: true, Password: "p4ss"})
	require.NoError(t, err)

	_, err = s.Open(ctx, ref, "wrong")
	assert.ErrorIs(t, err, secrets.ErrUnauthorized)

	// A failed attempt does not burn a one-time secret.
	plaintext, err := s.Open(ctx, ref, "p4ss")
	require.NoError(t, err)
	assert.Equal(t, "guarded", plaintext)
}

func TestOpenWrongKey(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "hello", share.Options{TTL: time.Hour, OneTime: true})
	require.NoError(t, err)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	wrong := ref
	wrong.Key = crypto.ExportKey(other)
	_, err = s.Open(ctx, wrong, "")
	assert.ErrorIs(t, err, secrets.ErrDecryption)

	missing := ref
	missing.Key = ""
	_, err = s.Open(ctx, missing, "")
	assert.ErrorIs(t, err, secrets.ErrDecryption)

	// Decryption failures leave the secret available for the real key.
	plaintext, err := s.Open(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)
}

func TestOpenUnknown(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)

	_, err := s.Open(context.Background(), share.Reference{Slug: "nope", Key: "x"}, "")
	assert.ErrorIs(t, err, secrets.ErrNotFound)
	assert.True(t, secrets.IsUnavailable(err))
}

func TestConcurrentOpenReturnsPlaintextOnce(t *testing.T) {
	t.Parallel()
	s, _ := newSharer(t)
	ctx := context.Background()

	ref, err := s.Create(ctx, "race me", share.Options{TTL: time.Hour, OneTime: true})
	require.NoError(t, err)

	const viewers = 20
	var (
		wg    sync.WaitGroup
		reads atomic.Int32
		start = make(chan struct{})
	)
	for range viewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			plaintext, err := s.Open(ctx, ref, "")
			if err == nil {
				assert.Equal(t, "race me", plaintext)
				reads.Add(1)
				return
			}
			assert.True(t, errors.Is(err, secrets.ErrConsumed), "unexpected error: %v", err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), reads.Load())
}
