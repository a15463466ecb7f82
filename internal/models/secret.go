package models

import "time"

// Secret is a stored ciphertext with its lifecycle flags. Everything except
// Viewed is write-once.
type Secret struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Ciphertext    string    `json:"-"`
	Nonce         string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	OneTime       bool      `json:"one_time"`
	Viewed        bool      `json:"viewed"`
	HasPassword   bool      `json:"has_password"`
	PasswordHash  string    `json:"-"`
	EncryptionKey string    `json:"-"` // only when the creator opted into server custody
	UserID        string    `json:"user_id,omitempty"`
}

// State is derived from a secret's flags at read time and never stored.
type State string

const (
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateConsumed State = "consumed"
)

// StateAt reports the secret's state at now. A consumed one-time secret stays
// consumed after it also expires.
func (s *Secret) StateAt(now time.Time) State {
	if s.OneTime && s.Viewed {
		return StateConsumed
	}
	if !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// Summary is the owner-facing view of a secret.
type Summary struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	OneTime       bool      `json:"one_time"`
	HasPassword   bool      `json:"has_password"`
	Ciphertext    string    `json:"ciphertext"`
	Nonce         string    `json:"nonce"`
	EncryptionKey string    `json:"encryption_key,omitempty"`
	Status        State     `json:"status"`
}

func (s *Secret) Summary(now time.Time) Summary {
	return Summary{
		ID:            s.ID,
		Slug:          s.Slug,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		OneTime:       s.OneTime,
		HasPassword:   s.HasPassword,
		Ciphertext:    s.Ciphertext,
		Nonce:         s.Nonce,
		EncryptionKey: s.EncryptionKey,
		Status:        s.StateAt(now),
	}
}
