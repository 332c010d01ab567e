// Package session holds the authenticated login a device works under.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

var ErrClosed = errors.New("session closed")

type Kind string

const (
	KindSuper Kind = "super"
	KindAdmin Kind = "admin"
)

type Authenticator interface {
	Login(ctx context.Context, identity string, secret string) (domain.LoginResponse, error)
}

type Session struct {
	ID        string
	Kind      Kind
	TenantID  string
	StoreName string
	Username  string
	Token     string
	ExpiresAt time.Time
	StartedAt time.Time

	mu         sync.RWMutex
	closed     bool
	secretHash []byte
}

// Login authenticates identity and returns a live session. The secret itself
// is not kept; a bcrypt hash of it backs local re-authentication.
func Login(ctx context.Context, auth Authenticator, identity string, secret string) (*Session, error) {
	resp, err := auth.Login(ctx, identity, secret)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		Kind:       Kind(resp.Type),
		Username:   strings.ToLower(strings.TrimSpace(identity)),
		Token:      resp.Token,
		StartedAt:  time.Now().UTC(),
		secretHash: hash,
	}
	if resp.Tenant != nil {
		s.TenantID = resp.Tenant.ID
		s.StoreName = resp.Tenant.StoreName
	}
	if resp.ExpiresAt != "" {
		if parsed, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			s.ExpiresAt = parsed
		}
	}
	if s.Kind == KindAdmin && s.TenantID == "" {
		return nil, errors.New("tenant login without tenant")
	}
	return s, nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.secretHash = nil
	s.Token = ""
}

// Check returns ErrClosed once the session has been logged out.
func (s *Session) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) IsSuper() bool {
	return s.Kind == KindSuper
}

// VerifyAdminSecret re-authenticates the tenant admin against the secret used
// at login.
func (s *Session) VerifyAdminSecret(secret string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.Kind != KindAdmin || len(s.secretHash) == 0 || strings.TrimSpace(secret) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)) == nil
}
