package store

import (
	"context"
	"errors"

	"secret.link/internal/models"
)

var (
	ErrNotFound  = errors.New("secret not found")
	ErrSlugTaken = errors.New("slug already in use")
)

// Store persists secrets. Slugs are reserved for good on Insert and are
// never accepted again, even after Delete or purge.
type Store interface {
	// Insert writes the whole record or nothing. Returns ErrSlugTaken when
	// the slug was ever used before.
	Insert(ctx context.Context, secret *models.Secret) error
	Get(ctx context.Context, slug string) (*models.Secret, error)
	// MarkViewed sets viewed from false to true atomically and reports
	// whether this call made the transition.
	MarkViewed(ctx context.Context, slug string) (bool, error)
	Delete(ctx context.Context, slug string) error
	// ListByOwner returns the owner's secrets, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Secret, error)
	Close() error
}
