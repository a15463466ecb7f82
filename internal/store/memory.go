package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"secret.link/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps secrets in process memory. It is meant for a single
// instance and for tests.
type MemoryStore struct {
	secrets       map[string]*models.Secret
	used          map[string]struct{}
	mu            sync.RWMutex
	purgeAfter    time.Duration
	cleanupCancel context.CancelFunc
}

// NewMemoryStore creates a store that drops records purgeAfter past their
// expiry, checking every cleanupInterval. A zero purgeAfter keeps records.
func NewMemoryStore(cleanupInterval, purgeAfter time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	store := &MemoryStore{
		secrets:       make(map[string]*models.Secret),
		used:          make(map[string]struct{}),
		purgeAfter:    purgeAfter,
		cleanupCancel: cancel,
	}
	if purgeAfter > 0 && cleanupInterval > 0 {
		go store.cleanupLoop(ctx, cleanupInterval)
	}
	return store
}

func (s *MemoryStore) Insert(ctx context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.used[secret.Slug]; ok {
		return ErrSlugTaken
	}
	s.used[secret.Slug] = struct{}{}

	cp := *secret
	s.secrets[secret.Slug] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, slug string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[slug]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *secret
	return &cp, nil
}

func (s *MemoryStore) MarkViewed(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[slug]
	if !ok {
		return false, ErrNotFound
	}
	if secret.Viewed {
		return false, nil
	}

	secret.Viewed = true
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.secrets[slug]; !ok {
		return ErrNotFound
	}
	delete(s.secrets, slug)
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Secret
	for _, secret := range s.secrets {
		if secret.UserID == "" || secret.UserID != ownerID {
			continue
		}
		cp := *secret
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets = nil
	return nil
}

func (s *MemoryStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

// cleanup drops records whose purge time has passed. Their slugs stay reserved.
func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slug, secret := range s.secrets {
		if now.After(secret.ExpiresAt.Add(s.purgeAfter)) {
			delete(s.secrets, slug)
		}
	}
}
