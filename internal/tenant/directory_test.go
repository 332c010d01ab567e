package tenant

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/memory"
)

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func newTestDirectory(t *testing.T) (*Directory, *memory.Store) {
	t.Helper()
	registry := memory.New()
	return NewDirectory(registry, "wandev", mustHash(t, "operator-secret")), registry
}

// failingRegistry wraps a registry and fails selected calls.
type failingRegistry struct {
	store.TenantRegistry
	failCreateUser bool
	failFindUser   bool
	deleted        []string
}

func (f *failingRegistry) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if f.failCreateUser {
		return errors.New("users table unavailable")
	}
	return f.TenantRegistry.CreateUser(ctx, user)
}

func (f *failingRegistry) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	if f.failFindUser {
		return nil, errors.New("connection refused")
	}
	return f.TenantRegistry.FindUser(ctx, username)
}

func (f *failingRegistry) DeleteTenant(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.TenantRegistry.DeleteTenant(ctx, id)
}

func TestLoginSuperOperatorSkipsRegistry(t *testing.T) {
	registry := &failingRegistry{TenantRegistry: memory.New(), failFindUser: true}
	dir := NewDirectory(registry, "wandev", mustHash(t, "operator-secret"))

	result, err := dir.Login(context.Background(), "  WANDEV ", "operator-secret")
	if err != nil {
		t.Fatalf("super login failed: %v", err)
	}
	if result.Kind != KindSuper || result.Tenant != nil {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLoginSuperWrongSecretDoesNotFallThrough(t *testing.T) {
	dir, _ := newTestDirectory(t)

	if _, err := dir.Login(context.Background(), "wandev", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginTenantAdmin(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	created, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja Um", Username: "Loja1", Password: "segredo1"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	result, err := dir.Login(ctx, "loja1", "segredo1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Kind != KindAdmin || result.Tenant == nil || result.Tenant.ID != created.ID {
		t.Fatalf("unexpected login result %+v", result)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	dir, registry := newTestDirectory(t)
	ctx := context.Background()

	if _, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja", Username: "loja1", Password: "segredo1"}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	_, unknownErr := dir.Login(ctx, "ghost", "segredo1")
	_, wrongErr := dir.Login(ctx, "loja1", "SEGREDO1")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for both, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("errors must not reveal the cause: %q vs %q", unknownErr, wrongErr)
	}

	down := NewDirectory(&failingRegistry{TenantRegistry: registry, failFindUser: true}, "wandev", "")
	if _, err := down.Login(ctx, "loja1", "segredo1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected registry outage to look like invalid credentials, got %v", err)
	}
}

func TestLoginUnknownUserPaysBcryptCost(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	if _, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja", Username: "loja1", Password: "segredo1"}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	var compared []string
	dir.verify = func(stored string, input string) bool {
		compared = append(compared, stored)
		return VerifyPassword(stored, input)
	}

	if _, err := dir.Login(ctx, "ghost", "segredo1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := dir.Login(ctx, "loja1", "wrong-secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if len(compared) != 2 {
		t.Fatalf("expected one bcrypt comparison per attempt, got %d", len(compared))
	}
	for i, hash := range compared {
		if !IsPasswordHash(hash) {
			t.Fatalf("attempt %d compared against non-bcrypt value %q", i+1, hash)
		}
	}
	if compared[0] != dummyHash() {
		t.Fatalf("expected unknown user to compare against the placeholder hash")
	}
}

func TestLoginRejectsDeactivatedTenant(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	created, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja", Username: "loja1", Password: "segredo1"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := dir.DeactivateTenant(ctx, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := dir.Login(ctx, "loja1", "segredo1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected deactivated tenant to be rejected, got %v", err)
	}
}

func TestLoginUpgradesLegacyEncoding(t *testing.T) {
	dir, registry := newTestDirectory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := registry.CreateTenant(ctx, domain.Tenant{ID: "old", StoreName: "Antiga", AdminUsername: "antiga", CreatedAt: now}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	legacy := base64.StdEncoding.EncodeToString([]byte("wan123"))
	if err := registry.CreateUser(ctx, domain.UserAccount{Username: "antiga", PasswordHash: legacy, TenantID: "old", Role: domain.RoleAdmin, CreatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := dir.Login(ctx, "antiga", "wan123"); err != nil {
		t.Fatalf("legacy login failed: %v", err)
	}
	user, err := registry.FindUser(ctx, "antiga")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !IsPasswordHash(user.PasswordHash) {
		t.Fatalf("expected legacy password to be upgraded, got %q", user.PasswordHash)
	}
	if _, err := dir.Login(ctx, "antiga", "wan123"); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}

func TestProvisionRollsBackTenantWhenUserWriteFails(t *testing.T) {
	registry := &failingRegistry{TenantRegistry: memory.New(), failCreateUser: true}
	dir := NewDirectory(registry, "wandev", "")
	ctx := context.Background()

	_, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja", Username: "loja1", Password: "segredo1"})
	if err == nil {
		t.Fatalf("expected provisioning to fail")
	}
	if len(registry.deleted) != 1 {
		t.Fatalf("expected one compensating delete, got %v", registry.deleted)
	}
	tenants, err := dir.ListTenants(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 0 {
		t.Fatalf("expected no orphaned tenant, got %+v", tenants)
	}
}

func TestProvisionValidatesInput(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	cases := []domain.ProvisionRequest{
		{StoreName: "", Username: "loja1", Password: "segredo1"},
		{StoreName: "Loja", Username: "lo", Password: "segredo1"},
		{StoreName: "Loja", Username: "loja um", Password: "segredo1"},
		{StoreName: "Loja", Username: "loja1", Password: "123"},
	}
	for _, req := range cases {
		if _, err := dir.Provision(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}
	if _, err := dir.Provision(ctx, domain.ProvisionRequest{StoreName: "Loja", Username: "WanDev", Password: "segredo1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected reserved username conflict, got %v", err)
	}
}

func TestProvisionDuplicateUsernameConflicts(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	req := domain.ProvisionRequest{StoreName: "Loja", Username: "loja1", Password: "segredo1"}
	if _, err := dir.Provision(ctx, req); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := dir.Provision(ctx, req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
