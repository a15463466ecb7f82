// Package share runs the creator and viewer sides of a secret link: it
// encrypts locally, hands only ciphertext to a Backend and carries the key in
// the link's fragment, which browsers never send to the server.
package share

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"secret.link/internal/crypto"
	"secret.link/internal/secrets"
)

// Backend is the server side of the lifecycle. *secrets.Service implements it
// in-process and client.Client over HTTP.
type Backend interface {
	Create(ctx context.Context, in secrets.CreateInput) (secrets.Created, error)
	GetStatus(ctx context.Context, slug string) (secrets.Status, error)
	VerifyPassword(ctx context.Context, slug, password string) error
	Consume(ctx context.Context, slug string) error
}

var ErrInvalidReference = errors.New("invalid secret link")

// Reference identifies a secret and, unless lost, the key to open it.
type Reference struct {
	Slug      string
	Key       string
	ExpiresAt time.Time
}

const pathPrefix = "/s/"

// URL renders the shareable link under base.
func (r Reference) URL(base string) string {
	u := strings.TrimRight(base, "/") + pathPrefix + url.PathEscape(r.Slug)
	if r.Key != "" {
		u += "#" + r.Key
	}
	return u
}

// ParseReference extracts slug and key from a link produced by URL.
func ParseReference(link string) (Reference, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Reference{}, errors.Join(ErrInvalidReference, err)
	}

	idx := strings.LastIndex(u.Path, pathPrefix)
	if idx < 0 {
		return Reference{}, fmt.Errorf("%w: no %s path segment", ErrInvalidReference, pathPrefix)
	}
	slug := u.Path[idx+len(pathPrefix):]
	if slug == "" || strings.Contains(slug, "/") {
		return Reference{}, fmt.Errorf("%w: bad slug", ErrInvalidReference)
	}

	return Reference{Slug: slug, Key: u.Fragment}, nil
}

// Options mirror the creation-time settings offered to users.
type Options struct {
	TTL      time.Duration
	OneTime  bool
	Password string
	// StoreKey hands the exported key to the server for later owner retrieval.
	StoreKey bool
	OwnerID  string
}

type Sharer struct {
	backend Backend
}

func New(b Backend) *Sharer {
	return &Sharer{backend: b}
}

// Create encrypts text with a fresh key and stores the ciphertext. The returned
// reference carries the key unless opts.StoreKey is set.
func (s *Sharer) Create(ctx context.Context, text string, opts Options) (Reference, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Reference{}, err
	}
	ciphertext, nonce, err := crypto.Encrypt(text, key)
	if err != nil {
		return Reference{}, err
	}
	exported := crypto.ExportKey(key)

	in := secrets.CreateInput{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		TTL:        opts.TTL,
		OneTime:    opts.OneTime,
		Password:   opts.Password,
		OwnerID:    opts.OwnerID,
	}
	if opts.StoreKey {
		in.EncryptionKey = exported
	}

	created, err := s.backend.Create(ctx, in)
	if err != nil {
		return Reference{}, err
	}

	ref := Reference{Slug: created.Slug, ExpiresAt: created.ExpiresAt}
	// A custodied key is recovered from the owner listing, never from the link.
	if !opts.StoreKey {
		ref.Key = exported
	}
	return ref, nil
}

// Open recovers the plaintext behind ref. For one-time secrets the plaintext
// is only returned to the caller whose consume won; everyone else gets
// secrets.ErrConsumed.
func (s *Sharer) Open(ctx context.Context, ref Reference, password string) (string, error) {
	status, err := s.backend.GetStatus(ctx, ref.Slug)
	if err != nil {
		return "", err
	}
	if err := status.Err(); err != nil {
		return "", err
	}

	if status.HasPassword {
		if err := s.backend.VerifyPassword(ctx, ref.Slug, password); err != nil {
			return "", err
		}
	}

	key, err := crypto.ImportKey(ref.Key)
	if err != nil {
		return "", secrets.ErrDecryption
	}
	plaintext, err := crypto.Decrypt(status.Ciphertext, key, status.Nonce)
	if err != nil {
		return "", err
	}

	if status.OneTime {
		if err := s.backend.Consume(ctx, ref.Slug); err != nil {
			return "", err
		}
	}
	return plaintext, nil
}
