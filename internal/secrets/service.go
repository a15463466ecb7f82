// Package secrets implements the lifecycle of a stored secret: creation with
// an optional password gate and optional key custody, status derivation,
// password verification, one-time consumption and owner-scoped management.
//
// The service never sees plaintext. It stores what the client encrypted and
// decides, from the stored flags and the clock, whether that ciphertext may
// still be handed out.
//
// Password verification answers every failure with ErrUnauthorized: unknown
// slug, no password set, wrong password and unreadable hash all look the same
// to the caller. The reason is logged at debug level only.
package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"secret.link/internal/crypto"
	"secret.link/internal/models"
	"secret.link/internal/password"
	"secret.link/internal/store"
)

// gcmTagSize is the minimum decoded ciphertext length.
const gcmTagSize = 16

// PasswordHasher is the password gate used by the service.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) error
}

// Service is the authoritative state machine for stored secrets.
type Service struct {
	store         store.Store
	hasher        PasswordHasher
	logger        *slog.Logger
	now           func() time.Time
	generateSlug  crypto.SlugGenerator
	slugAttempts  int
	maxTTL        time.Duration
	maxCiphertext int

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSlugGenerator(gen crypto.SlugGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.generateSlug = gen
		}
	}
}

// WithSlugAttempts bounds how many slugs Create tries before giving up.
func WithSlugAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.slugAttempts = n
		}
	}
}

// WithMaxTTL rejects longer lifetimes. Zero means unbounded.
func WithMaxTTL(d time.Duration) Option {
	return func(s *Service) { s.maxTTL = d }
}

// WithMaxCiphertextSize rejects larger encoded ciphertexts. Zero means unbounded.
func WithMaxCiphertextSize(n int) Option {
	return func(s *Service) { s.maxCiphertext = n }
}

func New(st store.Store, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{
		store:        st,
		hasher:       hasher,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		generateSlug: crypto.GenerateSlug,
		slugAttempts: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is what a creator sends after encrypting locally.
type CreateInput struct {
	Ciphertext    string
	Nonce         string
	TTL           time.Duration
	OneTime       bool
	Password      string // hashed, never stored
	EncryptionKey string // exported key, only when the creator opts into custody
	OwnerID       string
}

type Created struct {
	Slug      string
	ExpiresAt time.Time
}

// Create validates and persists a new secret and returns its slug.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	if err := s.validate(in); err != nil {
		return Created{}, err
	}

	var passwordHash string
	if in.Password != "" {
		h, err := s.hasher.Hash(in.Password)
		if err != nil {
			return Created{}, fmt.Errorf("hashing password: %w", err)
		}
		passwordHash = h
	}

	now := s.now().UTC()
	for attempt := 1; attempt <= s.slugAttempts; attempt++ {
		slug, err := s.generateSlug()
		if err != nil {
			return Created{}, err
		}

		secret := &models.Secret{
			ID:            uuid.NewString(),
			Slug:          slug,
			Ciphertext:    in.Ciphertext,
			Nonce:         in.Nonce,
			CreatedAt:     now,
			ExpiresAt:     now.Add(in.TTL),
			OneTime:       in.OneTime,
			HasPassword:   passwordHash != "",
			PasswordHash:  passwordHash,
			EncryptionKey: in.EncryptionKey,
			UserID:        in.OwnerID,
		}

		err = s.store.Insert(ctx, secret)
		if errors.Is(err, store.ErrSlugTaken) {
			s.logger.WarnContext(ctx, "slug collision", "attempt", attempt)
			continue
		}
		if err != nil {
			return Created{}, storeErr(err)
		}

		s.logger.InfoContext(ctx, "secret created",
			"slug", slug,
			"one_time", secret.OneTime,
			"has_password", secret.HasPassword,
			"key_custody", secret.EncryptionKey != "",
			"expires_at", secret.ExpiresAt,
		)
		return Created{Slug: slug, ExpiresAt: secret.ExpiresAt}, nil
	}

	return Created{}, ErrCollisionRetryExhausted
}

func (s *Service) validate(in CreateInput) error {
	if in.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrValidation)
	}
	if s.maxTTL > 0 && in.TTL > s.maxTTL {
		return fmt.Errorf("%w: ttl exceeds maximum of %s", ErrValidation, s.maxTTL)
	}
	if in.Ciphertext == "" {
		return fmt.Errorf("%w: ciphertext is required", ErrValidation)
	}
	if s.maxCiphertext > 0 && len(in.Ciphertext) > s.maxCiphertext {
		return fmt.Errorf("%w: ciphertext too large", ErrValidation)
	}
	if raw, err := base64.StdEncoding.DecodeString(in.Ciphertext); err != nil || len(raw) < gcmTagSize {
		return fmt.Errorf("%w: ciphertext is not valid base64 AEAD output", ErrValidation)
	}
	if raw, err := base64.StdEncoding.DecodeString(in.Nonce); err != nil || len(raw) != crypto.NonceSize {
		return fmt.Errorf("%w: nonce must be %d base64-encoded bytes", ErrValidation, crypto.NonceSize)
	}
	if in.EncryptionKey != "" {
		if _, err := crypto.ImportKey(in.EncryptionKey); err != nil {
			return fmt.Errorf("%w: encryption key is not a valid exported key", ErrValidation)
		}
	}
	return nil
}

// StatusKind is the outcome of a public lookup.
type StatusKind string

const (
	StatusNotFound  StatusKind = "not_found"
	StatusExpired   StatusKind = "expired"
	StatusConsumed  StatusKind = "consumed"
	StatusAvailable StatusKind = "available"
)

// Status carries ciphertext only when Kind is StatusAvailable. It never
// carries the password hash or a custodied key.
type Status struct {
	Kind        StatusKind
	Ciphertext  string
	Nonce       string
	OneTime     bool
	HasPassword bool
	ExpiresAt   time.Time
}

// Err maps an unavailable status onto the error taxonomy.
func (st Status) Err() error {
	switch st.Kind {
	case StatusNotFound:
		return ErrNotFound
	case StatusExpired:
		return ErrExpired
	case StatusConsumed:
		return ErrConsumed
	}
	return nil
}

// GetStatus derives the secret's state now. The only error is ErrTransient.
func (s *Service) GetStatus(ctx context.Context, slug string) (Status, error) {
	secret, err := s.store.Get(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return Status{Kind: StatusNotFound}, nil
	}
	if err != nil {
		return Status{}, storeErr(err)
	}

	switch secret.StateAt(s.now()) {
	case models.StateConsumed:
		return Status{Kind: StatusConsumed}, nil
	case models.StateExpired:
		return Status{Kind: StatusExpired}, nil
	}

	return Status{
		Kind:        StatusAvailable,
		Ciphertext:  secret.Ciphertext,
		Nonce:       secret.Nonce,
		OneTime:     secret.OneTime,
		HasPassword: secret.HasPassword,
		ExpiresAt:   secret.ExpiresAt,
	}, nil
}

// VerifyPassword checks candidate against the secret's password. It neither
// returns ciphertext nor marks the secret viewed.
func (s *Service) VerifyPassword(ctx context.Context, slug, candidate string) error {
	secret, err := s.store.Get(ctx, slug)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr(err)
	}

	reason := ""
	switch {
	case secret == nil:
		reason = "not found"
	case secret.StateAt(s.now()) != models.StateActive:
		reason = "unavailable"
	case !secret.HasPassword || secret.PasswordHash == "":
		reason = "no password set"
	}

	if reason != "" {
		// Burn the same hashing cost as a real check.
		_ = s.hasher.Verify(s.dummy(), candidate)
		s.logger.DebugContext(ctx, "password verification refused", "slug", slug, "reason", reason)
		return ErrUnauthorized
	}

	if err := s.hasher.Verify(secret.PasswordHash, candidate); err != nil {
		s.logger.InfoContext(ctx, "password verification failed", "slug", slug)
		if !errors.Is(err, password.ErrMismatch) {
			s.logger.ErrorContext(ctx, "stored password hash unusable", "slug", slug, "error", err)
		}
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

// Consume marks the secret viewed. For a one-time secret only the first
// caller gets nil; everyone after, including concurrent losers, gets
// ErrConsumed.
func (s *Service) Consume(ctx context.Context, slug string) error {
	secret, err := s.store.Get(ctx, slug)
	if err != nil {
		return storeErr(err)
	}

	switch secret.StateAt(s.now()) {
	case models.StateConsumed:
		return ErrConsumed
	case models.StateExpired:
		return ErrExpired
	}

	first, err := s.store.MarkViewed(ctx, slug)
	if err != nil {
		return storeErr(err)
	}
	if secret.OneTime && !first {
		return ErrConsumed
	}

	if first {
		s.logger.InfoContext(ctx, "secret consumed", "slug", slug, "one_time", secret.OneTime)
	}
	return nil
}

// ListByOwner returns summaries of the owner's secrets, newest first,
// including custodied keys.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.Summary, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}

	list, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}

	now := s.now()
	out := make([]models.Summary, 0, len(list))
	for _, secret := range list {
		out = append(out, secret.Summary(now))
	}
	return out, nil
}

// DeleteBySlug removes a secret owned by requesterID. Unknown slugs and
// foreign secrets both yield ErrUnauthorized.
func (s *Service) DeleteBySlug(ctx context.Context, slug, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthorized
	}

	secret, err := s.store.Get(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return storeErr(err)
	}
	if secret.UserID == "" || secret.UserID != requesterID {
		return ErrUnauthorized
	}

	if err := s.store.Delete(ctx, slug); err != nil {
		return storeErr(err)
	}

	s.logger.InfoContext(ctx, "secret deleted", "slug", slug)
	return nil
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return errors.Join(ErrTransient, err)
}
