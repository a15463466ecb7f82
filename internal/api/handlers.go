package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"secret.link/config"
	"secret.link/internal/models"
	"secret.link/internal/secrets"
	"secret.link/internal/share"
)

// Service is the lifecycle API the handlers expose.
type Service interface {
	Create(ctx context.Context, in secrets.CreateInput) (secrets.Created, error)
	GetStatus(ctx context.Context, slug string) (secrets.Status, error)
	VerifyPassword(ctx context.Context, slug, password string) error
	Consume(ctx context.Context, slug string) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Summary, error)
	DeleteBySlug(ctx context.Context, slug, requesterID string) error
}

type Handler struct {
	service Service
	config  *config.Config
	logger  *slog.Logger
}

func NewHandler(s Service, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		service: s,
		config:  cfg,
		logger:  log,
	}
}

type CreateRequest struct {
	Ciphertext    string `json:"ciphertext"`
	Nonce         string `json:"nonce"`
	TTLSeconds    int64  `json:"ttl_seconds"`
	OneTime       bool   `json:"one_time"`
	Password      string `json:"password,omitempty"`
	EncryptionKey string `json:"encryption_key,omitempty"`
}

type CreateResponse struct {
	Slug      string    `json:"slug"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SecretPayload struct {
	Ciphertext  string    `json:"ciphertext"`
	Nonce       string    `json:"nonce"`
	OneTime     bool      `json:"one_time"`
	HasPassword bool      `json:"has_password"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type StatusResponse struct {
	Status string         `json:"status"`
	Secret *SecretPayload `json:"secret,omitempty"`
}

type VerifyRequest struct {
	Password string `json:"password"`
}

type ConsumeResponse struct {
	Consumed bool `json:"consumed"`
}

type ListResponse struct {
	Secrets []models.Summary `json:"secrets"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.checkTTL(req.TTLSeconds); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), secrets.CreateInput{
		Ciphertext:    req.Ciphertext,
		Nonce:         req.Nonce,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
		OneTime:       req.OneTime,
		Password:      req.Password,
		EncryptionKey: req.EncryptionKey,
		OwnerID:       OwnerFrom(r.Context()),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.json(w, r, http.StatusCreated, CreateResponse{
		Slug:      created.Slug,
		URL:       share.Reference{Slug: created.Slug}.URL(h.config.Server.BaseURL),
		ExpiresAt: created.ExpiresAt,
	})
}

// maxTTLSeconds is the largest ttl_seconds that fits in a time.Duration.
const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

// checkTTL rejects ttl_seconds values that would overflow the conversion to a
// duration or exceed the configured maximum.
func (h *Handler) checkTTL(seconds int64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: ttl must be positive", secrets.ErrValidation)
	}
	limit := maxTTLSeconds
	if maxTTL := h.config.Secrets.MaxTTL; maxTTL > 0 {
		limit = min(limit, int64(maxTTL/time.Second))
	}
	if seconds > limit {
		return fmt.Errorf("%w: ttl exceeds maximum of %d seconds", secrets.ErrValidation, limit)
	}
	return nil
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	status, err := h.service.GetStatus(r.Context(), slug)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := StatusResponse{Status: string(status.Kind)}
	if status.Kind == secrets.StatusAvailable {
		resp.Secret = &SecretPayload{
			Ciphertext:  status.Ciphertext,
			Nonce:       status.Nonce,
			OneTime:     status.OneTime,
			HasPassword: status.HasPassword,
			ExpiresAt:   status.ExpiresAt,
		}
	}

	code := http.StatusOK
	if status.Kind == secrets.StatusNotFound {
		code = http.StatusNotFound
	}
	h.json(w, r, code, resp)
}

func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.VerifyPassword(r.Context(), chi.URLParam(r, "slug"), req.Password); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Consume(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.json(w, r, http.StatusOK, ConsumeResponse{Consumed: true})
}

func (h *Handler) ListOwned(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByOwner(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.json(w, r, http.StatusOK, ListResponse{Secrets: list})
}

func (h *Handler) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteBySlug(r.Context(), chi.URLParam(r, "slug"), OwnerFrom(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := int64(h.config.Secrets.MaxCiphertextBytes) + 16*1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.error(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.error(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) json(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.DebugContext(r.Context(), "writing response failed",
			"error", err,
			"request_id", RequestIDFrom(r.Context()),
		)
	}
}

func (h *Handler) error(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.json(w, r, status, ErrorResponse{Error: message})
}

// handleServiceError maps the secrets error taxonomy onto HTTP. Expired and
// consumed share one response so probing clients learn nothing more.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, secrets.ErrValidation):
		h.error(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, secrets.ErrUnauthorized):
		h.error(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, secrets.ErrNotFound):
		h.error(w, r, http.StatusNotFound, "secret not found")
	case errors.Is(err, secrets.ErrExpired), errors.Is(err, secrets.ErrConsumed):
		h.error(w, r, http.StatusGone, "secret is no longer available")
	case errors.Is(err, secrets.ErrTransient), errors.Is(err, secrets.ErrCollisionRetryExhausted):
		h.logger.WarnContext(r.Context(), "request failed", "error", err)
		w.Header().Set("Retry-After", "1")
		h.error(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		h.error(w, r, http.StatusInternalServerError, "internal error")
	}
}
