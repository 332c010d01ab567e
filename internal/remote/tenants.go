package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

// ListTenants requires an operator token.
func (c *Client) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	var payload struct {
		Tenants []domain.Tenant `json:"tenants"`
	}
	err := c.do(ctx, http.MethodGet, "/tenants", nil, func(res *http.Response) error {
		return json.NewDecoder(res.Body).Decode(&payload)
	})
	if err != nil {
		return nil, err
	}
	return payload.Tenants, nil
}

func (c *Client) ProvisionTenant(ctx context.Context, req domain.ProvisionRequest) (*domain.Tenant, error) {
	return c.tenantCall(ctx, http.MethodPost, "/tenants", req)
}

// DeactivateTenant soft-deletes a tenant; its buckets are kept.
func (c *Client) DeactivateTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return c.tenantCall(ctx, http.MethodDelete, "/tenants/"+url.PathEscape(id), nil)
}

func (c *Client) tenantCall(ctx context.Context, method string, path string, payload any) (*domain.Tenant, error) {
	var resp struct {
		Tenant *domain.Tenant `json:"tenant"`
	}
	err := c.do(ctx, method, path, payload, func(res *http.Response) error {
		return json.NewDecoder(res.Body).Decode(&resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Tenant, nil
}
