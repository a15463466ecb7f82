package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"secret.link/internal/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps secrets in the tables created by Migrate. Slug
// reservations live in their own table and are never deleted.
type PostgresStore struct {
	pool          *pgxpool.Pool
	purgeAfter    time.Duration
	cleanupCancel context.CancelFunc
}

// NewPostgresStore takes ownership of pool. When purgeAfter is positive,
// records are deleted purgeAfter past their expiry, checked every
// cleanupInterval.
func NewPostgresStore(pool *pgxpool.Pool, cleanupInterval, purgeAfter time.Duration) *PostgresStore {
	ctx, cancel := context.WithCancel(context.Background())
	store := &PostgresStore{
		pool:          pool,
		purgeAfter:    purgeAfter,
		cleanupCancel: cancel,
	}
	if purgeAfter > 0 && cleanupInterval > 0 {
		go store.cleanupLoop(ctx, cleanupInterval)
	}
	return store
}

const (
	insertColumns = `id, slug, ciphertext, nonce, created_at, expires_at, one_time, viewed,
	has_password, password_hash, encryption_key, user_id`
	secretColumns = `id::text, slug, ciphertext, nonce, created_at, expires_at, one_time, viewed,
	has_password, password_hash, encryption_key, user_id`
)

func (p *PostgresStore) Insert(ctx context.Context, secret *models.Secret) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO secret_slugs (slug) VALUES ($1)`, secret.Slug); err != nil {
			if isDuplicateKeyError(err) {
				return ErrSlugTaken
			}
			return err
		}

		id, err := uuid.Parse(secret.ID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO secrets (`+insertColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			id, secret.Slug, secret.Ciphertext, secret.Nonce,
			secret.CreatedAt, secret.ExpiresAt, secret.OneTime, secret.Viewed,
			secret.HasPassword, nullable(secret.PasswordHash), nullable(secret.EncryptionKey),
			nullable(secret.UserID),
		)
		return err
	})
}

func (p *PostgresStore) Get(ctx context.Context, slug string) (*models.Secret, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+secretColumns+` FROM secrets WHERE slug = $1`, slug)
	secret, err := scanSecret(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return secret, err
}

func (p *PostgresStore) MarkViewed(ctx context.Context, slug string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE secrets SET viewed = true WHERE slug = $1 AND viewed = false`, slug)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM secrets WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (p *PostgresStore) Delete(ctx context.Context, slug string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM secrets WHERE slug = $1`, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Secret, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+secretColumns+` FROM secrets
		WHERE user_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, secret)
	}
	return out, rows.Err()
}

// PurgeExpired deletes secrets that expired before cutoff.
func (p *PostgresStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM secrets WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Close() error {
	if p.cleanupCancel != nil {
		p.cleanupCancel()
	}
	p.pool.Close()
	return nil
}

func (p *PostgresStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are retried on the next tick.
			_, _ = p.PurgeExpired(ctx, time.Now().Add(-p.purgeAfter))
		}
	}
}

func scanSecret(row pgx.Row) (*models.Secret, error) {
	var (
		s                         models.Secret
		passwordHash, key, userID *string
	)
	err := row.Scan(
		&s.ID, &s.Slug, &s.Ciphertext, &s.Nonce, &s.CreatedAt, &s.ExpiresAt,
		&s.OneTime, &s.Viewed, &s.HasPassword, &passwordHash, &key, &userID,
	)
	if err != nil {
		return nil, err
	}
	s.PasswordHash = deref(passwordHash)
	s.EncryptionKey = deref(key)
	s.UserID = deref(userID)
	return &s, nil
}

// isDuplicateKeyError detects unique constraint violations (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
