package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KiritoRJ/assistenciatecnica/internal/checkout"
	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/remote"
	"github.com/KiritoRJ/assistenciatecnica/internal/session"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/memory"
	"github.com/KiritoRJ/assistenciatecnica/internal/syncer"
)

type adminAuth struct{}

func (adminAuth) Login(_ context.Context, identity string, _ string) (domain.LoginResponse, error) {
	return domain.LoginResponse{
		Success: true,
		Type:    "admin",
		Tenant:  &domain.Tenant{ID: identity, StoreName: "Loja Demo"},
		Token:   "tok",
	}, nil
}

// offlineRemote never answers, so every write stays queued locally.
type offlineRemote struct{}

func (offlineRemote) Pull(context.Context, string, domain.Bucket) (*domain.BucketDocument, error) {
	return nil, remote.ErrUnreachable
}

func (offlineRemote) Push(context.Context, domain.BucketDocument) (domain.SyncPushResponse, error) {
	return domain.SyncPushResponse{}, remote.ErrUnreachable
}

func newTestWorkspace(t *testing.T) (*Workspace, *syncer.Engine) {
	t.Helper()
	sess, err := session.Login(context.Background(), adminAuth{}, "loja1", "admin123")
	require.NoError(t, err)
	engine := syncer.New(sess, memory.New(), offlineRemote{}, syncer.Config{})
	t.Cleanup(engine.Close)
	return New(engine, sess), engine
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	products, err := ws.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	saved, err := ws.SaveProduct(ctx, domain.Product{Name: "Tela", CostPrice: 10, SalePrice: 15, Quantity: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	summary, err := ws.StockSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, summary.TotalStockInvestment)
	assert.Equal(t, 10.0, summary.TotalPotentialProfit)

	_, err = ws.SaveProduct(ctx, domain.Product{Name: "Cabo", Quantity: -1})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	require.NoError(t, ws.RemoveProduct(ctx, saved.ID))
	require.ErrorIs(t, ws.RemoveProduct(ctx, saved.ID), store.ErrNotFound)
}

func TestCheckoutAndCancelThroughSyncEngine(t *testing.T) {
	ctx := context.Background()
	ws, engine := newTestWorkspace(t)

	product, err := ws.SaveProduct(ctx, domain.Product{Name: "Tela", CostPrice: 10, SalePrice: 15, Quantity: 2})
	require.NoError(t, err)

	cart, err := ws.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, cart.AddToCart(product.ID))
	require.NoError(t, cart.AddToCart(product.ID))
	require.ErrorIs(t, cart.AddToCart(product.ID), store.ErrInsufficientStock)
	require.NoError(t, cart.BeginPayment())
	receipt, err := cart.Finalize(ctx, checkout.Payment{Method: domain.PaymentCash, AmountReceived: 50})
	require.NoError(t, err)
	assert.Equal(t, 20.0, receipt.ChangeDue)

	products, err := ws.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, products[0].Quantity)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Positive(t, status.Pending)

	cart, err = ws.Checkout(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, cart.CancelSale(ctx, receipt.Sales[0].ID, "wrong"), checkout.ErrUnauthorized)
	require.NoError(t, cart.CancelSale(ctx, receipt.Sales[0].ID, "admin123"))

	products, err = ws.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, products[0].Quantity)
	sales, err := ws.Sales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestOrdersFeedFinance(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	o, err := ws.SaveOrder(ctx, domain.ServiceOrder{CustomerName: "Maria", PartsCost: 40, ServiceCost: 100})
	require.NoError(t, err)
	assert.Equal(t, 140.0, o.Total)

	_, err = ws.TransitionOrder(ctx, o.ID, domain.OrderCompleted)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	o.FinishedPhotos = []string{"a.jpg", "b.jpg"}
	o, err = ws.SaveOrder(ctx, o)
	require.NoError(t, err)
	_, err = ws.TransitionOrder(ctx, o.ID, domain.OrderCompleted)
	require.NoError(t, err)
	_, err = ws.TransitionOrder(ctx, o.ID, domain.OrderDelivered)
	require.NoError(t, err)

	require.NoError(t, ws.AddEntry(ctx, domain.Transaction{ID: "t1", Type: domain.EntryExpense, Amount: 30}))

	summary, err := ws.Finance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.ServiceRevenue)
	assert.Equal(t, 70.0, summary.NetProfit)

	require.NoError(t, ws.RemoveEntry(ctx, "t1"))
	summary, err = ws.Finance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.NetProfit)

	require.NoError(t, ws.RemoveOrder(ctx, o.ID))
	_, err = ws.TransitionOrder(ctx, o.ID, domain.OrderPending)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettingsDefaultAndSave(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	settings, err := ws.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.IsConfigured)
	assert.Empty(t, settings.Users)

	settings.StoreName = "Assistência Central"
	settings.Users = append(settings.Users, domain.StoreUser{ID: "u1", Name: "Ana", Role: domain.RoleVendedor})
	require.NoError(t, ws.SaveSettings(ctx, settings))

	got, err := ws.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Assistência Central", got.StoreName)
	require.Len(t, got.Users, 1)

	settings.StoreName = " "
	require.ErrorIs(t, ws.SaveSettings(ctx, settings), store.ErrInvalidInput)

	settings.StoreName = "Assistência Central"
	settings.PDFPaperWidth = 72
	require.ErrorIs(t, ws.SaveSettings(ctx, settings), store.ErrInvalidInput)
}

func TestStoreUsers(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	ana, err := ws.AddUser(ctx, "Ana", domain.RoleVendedor)
	require.NoError(t, err)
	assert.NotEmpty(t, ana.ID)
	_, err = ws.AddUser(ctx, "Bruno", domain.RoleTecnico)
	require.NoError(t, err)

	_, err = ws.AddUser(ctx, "Carla", domain.RoleAdmin)
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = ws.AddUser(ctx, " ", domain.RoleVendedor)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	require.NoError(t, ws.RemoveUser(ctx, ana.ID))
	require.ErrorIs(t, ws.RemoveUser(ctx, ana.ID), store.ErrNotFound)

	settings, err := ws.Settings(ctx)
	require.NoError(t, err)
	require.Len(t, settings.Users, 1)
	assert.Equal(t, "Bruno", settings.Users[0].Name)
}

func TestClosedSessionRejectsWorkspace(t *testing.T) {
	ctx := context.Background()
	ws, engine := newTestWorkspace(t)
	engine.Session().Logout()

	_, err := ws.Products(ctx)
	require.ErrorIs(t, err, session.ErrClosed)
}
