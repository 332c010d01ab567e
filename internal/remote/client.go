// Package remote is the device-side HTTP client of the sync server.
package remote

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

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/tenant"
)

// HeaderUpdatedAt mirrors the server header carrying a bucket's updatedAt.
const HeaderUpdatedAt = "X-Sync-Updated-At"

var (
	// ErrUnreachable covers transport failures, timeouts and 5xx answers. It is
	// retryable.
	ErrUnreachable = errors.New("remote store unreachable")
	// ErrRejected is a 4xx answer other than 401.
	ErrRejected = errors.New("remote store rejected request")
	// ErrTokenRejected means the bearer token is missing, expired or invalid.
	ErrTokenRejected = errors.New("remote store rejected session token")
)

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Login exchanges credentials for a session token. Bad credentials return
// tenant.ErrInvalidCredentials, distinct from ErrUnreachable.
func (c *Client) Login(ctx context.Context, identity string, secret string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", domain.LoginRequest{Username: identity, PasswordHash: secret}, func(res *http.Response) error {
		return json.NewDecoder(res.Body).Decode(&resp)
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !resp.Success {
		return domain.LoginResponse{}, tenant.ErrInvalidCredentials
	}
	return resp, nil
}

// Pull returns nil when the remote holds no document for the bucket.
func (c *Client) Pull(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	query := url.Values{}
	query.Set("tenantId", tenantID)
	query.Set("store", string(bucket))

	var doc *domain.BucketDocument
	err := c.do(ctx, http.MethodGet, "/sync?"+query.Encode(), nil, func(res *http.Response) error {
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil
		}
		if !json.Valid(trimmed) {
			return errors.New("remote returned invalid JSON")
		}
		doc = &domain.BucketDocument{TenantID: tenantID, Bucket: bucket, Data: json.RawMessage(trimmed)}
		if raw := res.Header.Get(HeaderUpdatedAt); raw != "" {
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return fmt.Errorf("parse %s: %w", HeaderUpdatedAt, err)
			}
			doc.UpdatedAt = parsed.UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) Push(ctx context.Context, doc domain.BucketDocument) (domain.SyncPushResponse, error) {
	req := domain.SyncPushRequest{TenantID: doc.TenantID, Store: string(doc.Bucket), Data: doc.Data}
	if !doc.UpdatedAt.IsZero() {
		at := doc.UpdatedAt.UTC()
		req.UpdatedAt = &at
	}

	var resp domain.SyncPushResponse
	err := c.do(ctx, http.MethodPost, "/sync", req, func(res *http.Response) error {
		return json.NewDecoder(res.Body).Decode(&resp)
	})
	if err != nil {
		return domain.SyncPushResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, path string, payload any, decode func(*http.Response) error) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: %s", ErrUnreachable, method, path, errorMessage(res))
	case res.StatusCode == http.StatusUnauthorized:
		return ErrTokenRejected
	case res.StatusCode >= 400:
		return fmt.Errorf("%w: %s", ErrRejected, errorMessage(res))
	}

	if err := decode(res); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnreachable, method, path, err)
	}
	return nil
}

func errorMessage(res *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&payload); err != nil || payload.Error == "" {
		return fmt.Sprintf("status %d", res.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", res.StatusCode, payload.Error)
}
