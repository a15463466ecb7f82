// Package client talks to the secret link HTTP API. It implements
// share.Backend so links can be created and opened from another process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"secret.link/internal/api"
	"secret.link/internal/models"
	"secret.link/internal/secrets"
)

type Client struct {
	baseURL     string
	http        *http.Client
	ownerHeader string
	owner       string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithOwner sends owner in header on every request.
func WithOwner(header, owner string) Option {
	return func(cl *Client) {
		cl.ownerHeader = header
		cl.owner = owner
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		ownerHeader: "X-User-ID",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, in secrets.CreateInput) (secrets.Created, error) {
	req := api.CreateRequest{
		Ciphertext:    in.Ciphertext,
		Nonce:         in.Nonce,
		TTLSeconds:    int64(in.TTL / time.Second),
		OneTime:       in.OneTime,
		Password:      in.Password,
		EncryptionKey: in.EncryptionKey,
	}

	var resp api.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/secrets", req, &resp, http.StatusCreated); err != nil {
		return secrets.Created{}, err
	}
	return secrets.Created{Slug: resp.Slug, ExpiresAt: resp.ExpiresAt}, nil
}

func (c *Client) GetStatus(ctx context.Context, slug string) (secrets.Status, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, secretPath(slug), nil, &resp, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return secrets.Status{}, err
	}

	st := secrets.Status{Kind: secrets.StatusKind(resp.Status)}
	switch st.Kind {
	case secrets.StatusAvailable:
		if resp.Secret == nil {
			return secrets.Status{}, fmt.Errorf("status %q without secret payload", resp.Status)
		}
		st.Ciphertext = resp.Secret.Ciphertext
		st.Nonce = resp.Secret.Nonce
		st.OneTime = resp.Secret.OneTime
		st.HasPassword = resp.Secret.HasPassword
		st.ExpiresAt = resp.Secret.ExpiresAt
	case secrets.StatusExpired, secrets.StatusConsumed, secrets.StatusNotFound:
	default:
		return secrets.Status{}, fmt.Errorf("unknown status %q", resp.Status)
	}
	return st, nil
}

func (c *Client) VerifyPassword(ctx context.Context, slug, password string) error {
	return c.do(ctx, http.MethodPost, secretPath(slug)+"/verify", api.VerifyRequest{Password: password}, nil, http.StatusNoContent)
}

// Consume reports secrets.ErrConsumed for any 410; the server does not say
// whether the secret was consumed or expired.
func (c *Client) Consume(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodPost, secretPath(slug)+"/consume", nil, nil, http.StatusOK)
}

func (c *Client) List(ctx context.Context) ([]models.Summary, error) {
	var resp api.ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/secrets", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Secrets, nil
}

func (c *Client) Delete(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, secretPath(slug), nil, nil, http.StatusNoContent)
}

func secretPath(slug string) string {
	return "/api/secrets/" + url.PathEscape(slug)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, expect ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.owner != "" {
		req.Header.Set(c.ownerHeader, c.owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(secrets.ErrTransient, err)
	}
	defer resp.Body.Close()

	for _, code := range expect {
		if resp.StatusCode == code {
			if out == nil || resp.StatusCode == http.StatusNoContent {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return nil
		}
	}

	return responseError(resp)
}

func responseError(resp *http.Response) error {
	var e api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = resp.Status
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusRequestEntityTooLarge:
		kind = secrets.ErrValidation
	case resp.StatusCode == http.StatusUnauthorized:
		kind = secrets.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		kind = secrets.ErrNotFound
	case resp.StatusCode == http.StatusGone:
		kind = secrets.ErrConsumed
	case resp.StatusCode == http.StatusServiceUnavailable, resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusGatewayTimeout:
		kind = secrets.ErrTransient
	default:
		return fmt.Errorf("unexpected response %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %s", kind, msg)
}
