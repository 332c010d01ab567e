// Package tenant resolves login identities to tenants and provisions new
// tenants for the platform operator.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

// ErrInvalidCredentials never says whether the user exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Kind string

const (
	KindSuper Kind = "super"
	KindAdmin Kind = "admin"
)

type LoginResult struct {
	Kind     Kind
	Username string
	Tenant   *domain.Tenant
}

type Directory struct {
	registry      store.TenantRegistry
	superUsername string
	superHash     string
	verify        func(stored string, input string) bool
	now           func() time.Time
}

func NewDirectory(registry store.TenantRegistry, superUsername string, superPasswordHash string) *Directory {
	return &Directory{
		registry:      registry,
		superUsername: normalizeUsername(superUsername),
		superHash:     strings.TrimSpace(superPasswordHash),
		verify:        VerifyPassword,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (d *Directory) Login(ctx context.Context, identity string, secret string) (LoginResult, error) {
	username := normalizeUsername(identity)
	if username == "" || strings.TrimSpace(secret) == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	// The operator identity is resolved in-process and never reaches the registry.
	if d.superUsername != "" && username == d.superUsername {
		if d.verify(d.superHash, secret) {
			return LoginResult{Kind: KindSuper, Username: username}, nil
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := d.registry.FindUser(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("[tenant] user registry unavailable during login")
		}
		d.verify(dummyHash(), secret)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !d.verifyAndUpgrade(ctx, user, secret) {
		return LoginResult{}, ErrInvalidCredentials
	}

	t, err := d.registry.GetTenant(ctx, user.TenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("tenant", user.TenantID).Msg("[tenant] tenant lookup failed during login")
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	if !t.Active() {
		return LoginResult{}, ErrInvalidCredentials
	}

	return LoginResult{Kind: KindAdmin, Username: username, Tenant: t}, nil
}

// verifyAndUpgrade checks secret against the stored hash. Rows still holding
// the legacy base64 encoding are accepted once and rewritten as bcrypt.
func (d *Directory) verifyAndUpgrade(ctx context.Context, user *domain.UserAccount, secret string) bool {
	if IsPasswordHash(user.PasswordHash) {
		return d.verify(user.PasswordHash, secret)
	}
	if !matchesLegacyEncoding(user.PasswordHash, secret) {
		d.verify(dummyHash(), secret)
		return false
	}
	hashed, err := HashPassword(secret)
	if err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("[tenant] failed to hash legacy password")
		return true
	}
	if err := d.registry.UpdateUserPassword(ctx, user.Username, hashed); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("[tenant] failed to upgrade legacy password")
	}
	return true
}

// Provision creates a tenant and its admin user. The two writes are linked:
// when the user row fails, the tenant row is deleted again.
func (d *Directory) Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.Tenant, error) {
	storeName := strings.TrimSpace(req.StoreName)
	username := normalizeUsername(req.Username)
	if storeName == "" {
		return nil, fmt.Errorf("%w: store name is required", store.ErrInvalidInput)
	}
	if len(username) < 3 || strings.ContainsAny(username, " \t\r\n") {
		return nil, fmt.Errorf("%w: username must be at least 3 characters without spaces", store.ErrInvalidInput)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	if username == d.superUsername {
		return nil, fmt.Errorf("%w: username is reserved", store.ErrConflict)
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := d.now()
	created, err := d.registry.CreateTenant(ctx, domain.Tenant{
		ID:                uuid.NewString(),
		StoreName:         storeName,
		AdminUsername:     username,
		AdminPasswordHash: passwordHash,
		CreatedAt:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	err = d.registry.CreateUser(ctx, domain.UserAccount{
		Username:     username,
		PasswordHash: passwordHash,
		TenantID:     created.ID,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
	})
	if err != nil {
		if delErr := d.registry.DeleteTenant(ctx, created.ID); delErr != nil {
			log.Error().Err(delErr).Str("tenant", created.ID).Msg("[tenant] compensating delete failed, tenant row is orphaned")
			return nil, fmt.Errorf("create admin user: %w (rollback of tenant %s failed: %v)", err, created.ID, delErr)
		}
		return nil, fmt.Errorf("create admin user, tenant %s rolled back: %w", created.ID, err)
	}

	log.Info().Str("tenant", created.ID).Str("username", username).Msg("[tenant] provisioned")
	return created, nil
}

func (d *Directory) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	return d.registry.ListTenants(ctx)
}

// DeactivateTenant soft deletes a tenant. Its buckets stay stored but can no
// longer be read or written.
func (d *Directory) DeactivateTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return d.registry.DeactivateTenant(ctx, id, d.now())
}

// ActiveTenant returns the tenant when it exists and is not soft deleted.
func (d *Directory) ActiveTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := d.registry.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
