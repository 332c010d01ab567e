package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KiritoRJ/assistenciatecnica/internal/cache"
	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/httpapi"
	"github.com/KiritoRJ/assistenciatecnica/internal/service"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/memory"
	"github.com/KiritoRJ/assistenciatecnica/internal/tenant"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")

	repo := memory.NewSeeded()
	dir := tenant.NewDirectory(repo, "wandev", "")
	svc := service.New(repo, dir, cache.NoopBucketCache{}, time.Minute)
	api := httpapi.New(svc, dir, httpapi.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour), "*")

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestLoginPullPushAgainstServer(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	client := New(server.URL, 5*time.Second)

	resp, err := client.Login(ctx, "loja1", "admin123")
	require.NoError(t, err)
	require.Equal(t, "admin", resp.Type)
	require.NotNil(t, resp.Tenant)

	authed := client.WithToken(resp.Token)

	doc, err := authed.Pull(ctx, "loja1", domain.BucketSales)
	require.NoError(t, err)
	assert.Nil(t, doc)

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	pushed, err := authed.Push(ctx, domain.BucketDocument{TenantID: "loja1", Bucket: domain.BucketSales, Data: json.RawMessage(`[{"id":"s1"}]`), UpdatedAt: at})
	require.NoError(t, err)
	assert.True(t, pushed.Applied)

	doc, err = authed.Pull(ctx, "loja1", domain.BucketSales)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.JSONEq(t, `[{"id":"s1"}]`, string(doc.Data))
	assert.True(t, doc.UpdatedAt.Equal(at))
}

func TestLoginBadCredentialsIsAuthFailure(t *testing.T) {
	server := newTestServer(t)

	_, err := New(server.URL, time.Second).Login(context.Background(), "loja1", "nope")
	require.ErrorIs(t, err, tenant.ErrInvalidCredentials)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestUnreachableServerIsNetworkFailure(t *testing.T) {
	server := newTestServer(t)
	url := server.URL
	server.Close()

	_, err := New(url, time.Second).Login(context.Background(), "loja1", "admin123")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, errors.Is(err, tenant.ErrInvalidCredentials))
}

func TestServerErrorsAreRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).Pull(context.Background(), "loja1", domain.BucketProducts)
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestMissingTokenIsRejected(t *testing.T) {
	server := newTestServer(t)

	_, err := New(server.URL, time.Second).Pull(context.Background(), "loja1", domain.BucketProducts)
	require.ErrorIs(t, err, ErrTokenRejected)
}

func TestForeignTenantIsRejected(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	client := New(server.URL, time.Second)

	resp, err := client.Login(ctx, "loja1", "admin123")
	require.NoError(t, err)

	_, err = client.WithToken(resp.Token).Push(ctx, domain.BucketDocument{TenantID: "loja2", Bucket: domain.BucketOrders, Data: json.RawMessage(`[]`)})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "403")
}

func TestOperatorTenantCalls(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	ctx := context.Background()

	superHash, err := tenant.HashPassword("operator-secret-1")
	require.NoError(t, err)
	repo := memory.NewSeeded()
	dir := tenant.NewDirectory(repo, "wandev", superHash)
	svc := service.New(repo, dir, cache.NoopBucketCache{}, time.Minute)
	api := httpapi.New(svc, dir, httpapi.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour), "*")
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	client := New(server.URL, 5*time.Second)
	resp, err := client.Login(ctx, "wandev", "operator-secret-1")
	require.NoError(t, err)
	require.Equal(t, "super", resp.Type)
	operator := client.WithToken(resp.Token)

	created, err := operator.ProvisionTenant(ctx, domain.ProvisionRequest{StoreName: "Loja Dois", Username: "loja2", Password: "segredo-2"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Loja Dois", created.StoreName)

	_, err = operator.ProvisionTenant(ctx, domain.ProvisionRequest{StoreName: "Outra", Username: "loja2", Password: "segredo-3"})
	require.ErrorIs(t, err, ErrRejected)

	tenants, err := operator.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)

	gone, err := operator.DeactivateTenant(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, gone.DeletedAt)

	_, err = client.Login(ctx, "loja2", "segredo-2")
	require.ErrorIs(t, err, tenant.ErrInvalidCredentials)

	_, err = client.WithToken("").ListTenants(ctx)
	require.ErrorIs(t, err, ErrTokenRejected)
}
