// Package workspace gives typed access to a tenant's buckets on a device.
// Every mutation goes through the sync engine, which persists it locally and
// queues it for the remote store.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/checkout"
	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/finance"
	"github.com/KiritoRJ/assistenciatecnica/internal/inventory"
	"github.com/KiritoRJ/assistenciatecnica/internal/orders"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/syncer"
	"github.com/KiritoRJ/assistenciatecnica/internal/xid"
)

type Workspace struct {
	buckets checkout.Buckets
	auth    checkout.Reauthenticator
	now     func() time.Time
}

// New binds a workspace to buckets, normally a *syncer.Engine. auth backs
// admin re-authentication for sale cancellation.
func New(buckets checkout.Buckets, auth checkout.Reauthenticator) *Workspace {
	return &Workspace{
		buckets: buckets,
		auth:    auth,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (w *Workspace) Products(ctx context.Context) ([]domain.Product, error) {
	return loadList[domain.Product](ctx, w.buckets, domain.BucketProducts)
}

// SaveProduct inserts or replaces a product. A missing id is generated.
func (w *Workspace) SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	products, err := w.Products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = xid.New("prod")
	}
	ledger := inventory.New(products)
	if err := ledger.Upsert(p); err != nil {
		return domain.Product{}, err
	}
	if err := saveList(ctx, w.buckets, domain.BucketProducts, ledger.Products()); err != nil {
		return domain.Product{}, err
	}
	saved, _ := ledger.Get(p.ID)
	return saved, nil
}

func (w *Workspace) RemoveProduct(ctx context.Context, id string) error {
	products, err := w.Products(ctx)
	if err != nil {
		return err
	}
	ledger := inventory.New(products)
	if err := ledger.Remove(id); err != nil {
		return err
	}
	return saveList(ctx, w.buckets, domain.BucketProducts, ledger.Products())
}

func (w *Workspace) StockSummary(ctx context.Context) (inventory.Summary, error) {
	products, err := w.Products(ctx)
	if err != nil {
		return inventory.Summary{}, err
	}
	return inventory.New(products).Summary(), nil
}

func (w *Workspace) Sales(ctx context.Context) ([]domain.Sale, error) {
	return loadList[domain.Sale](ctx, w.buckets, domain.BucketSales)
}

// Checkout opens a cart over the current products and sales.
func (w *Workspace) Checkout(ctx context.Context) (*checkout.Engine, error) {
	products, err := w.Products(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := w.Sales(ctx)
	if err != nil {
		return nil, err
	}
	return checkout.New(w.buckets, w.auth, products, sales), nil
}

func (w *Workspace) Orders(ctx context.Context) ([]domain.ServiceOrder, error) {
	return loadList[domain.ServiceOrder](ctx, w.buckets, domain.BucketOrders)
}

// SaveOrder validates and stores an order, keeping the original creation
// time on edits.
func (w *Workspace) SaveOrder(ctx context.Context, o domain.ServiceOrder) (domain.ServiceOrder, error) {
	list, err := w.Orders(ctx)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	if existing, ok := orders.Find(list, o.ID); ok && o.CreatedAt.IsZero() {
		o.CreatedAt = existing.CreatedAt
	}
	o, err = orders.Normalize(o, w.now())
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	if err := saveList(ctx, w.buckets, domain.BucketOrders, orders.Upsert(list, o)); err != nil {
		return domain.ServiceOrder{}, err
	}
	return o, nil
}

func (w *Workspace) TransitionOrder(ctx context.Context, id string, status string) (domain.ServiceOrder, error) {
	list, err := w.Orders(ctx)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	o, ok := orders.Find(list, id)
	if !ok {
		return domain.ServiceOrder{}, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	o, err = orders.Transition(o, status)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	if err := saveList(ctx, w.buckets, domain.BucketOrders, orders.Upsert(list, o)); err != nil {
		return domain.ServiceOrder{}, err
	}
	return o, nil
}

func (w *Workspace) RemoveOrder(ctx context.Context, id string) error {
	list, err := w.Orders(ctx)
	if err != nil {
		return err
	}
	rest, err := orders.Remove(list, id)
	if err != nil {
		return err
	}
	return saveList(ctx, w.buckets, domain.BucketOrders, rest)
}

func (w *Workspace) Entries(ctx context.Context) ([]domain.Transaction, error) {
	return loadList[domain.Transaction](ctx, w.buckets, domain.BucketTransactions)
}

func (w *Workspace) AddEntry(ctx context.Context, entry domain.Transaction) error {
	entries, err := w.Entries(ctx)
	if err != nil {
		return err
	}
	return saveList(ctx, w.buckets, domain.BucketTransactions, finance.AddEntry(entries, entry))
}

func (w *Workspace) RemoveEntry(ctx context.Context, id string) error {
	entries, err := w.Entries(ctx)
	if err != nil {
		return err
	}
	rest, err := finance.RemoveEntry(entries, id)
	if err != nil {
		return err
	}
	return saveList(ctx, w.buckets, domain.BucketTransactions, rest)
}

// Finance recomputes the summary from the current buckets.
func (w *Workspace) Finance(ctx context.Context) (finance.Summary, error) {
	list, err := w.Orders(ctx)
	if err != nil {
		return finance.Summary{}, err
	}
	sales, err := w.Sales(ctx)
	if err != nil {
		return finance.Summary{}, err
	}
	entries, err := w.Entries(ctx)
	if err != nil {
		return finance.Summary{}, err
	}
	return finance.Summarize(list, sales, entries), nil
}

// Settings returns the stored settings, or the defaults when none exist yet.
func (w *Workspace) Settings(ctx context.Context) (domain.Settings, error) {
	doc, err := w.buckets.Read(ctx, domain.BucketSettings)
	if err != nil {
		return domain.Settings{}, err
	}
	if doc == nil {
		return domain.DefaultSettings(), nil
	}
	var settings domain.Settings
	if err := json.Unmarshal(doc.Data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode %s: %w", domain.BucketSettings, err)
	}
	if settings.Users == nil {
		settings.Users = []domain.StoreUser{}
	}
	return settings, nil
}

func (w *Workspace) SaveSettings(ctx context.Context, settings domain.Settings) error {
	settings.StoreName = strings.TrimSpace(settings.StoreName)
	if settings.StoreName == "" {
		return fmt.Errorf("%w: store name is required", store.ErrInvalidInput)
	}
	if settings.PDFPaperWidth != 58 && settings.PDFPaperWidth != 80 {
		return fmt.Errorf("%w: paper width must be 58 or 80", store.ErrInvalidInput)
	}
	if settings.PDFFontSize <= 0 {
		return fmt.Errorf("%w: font size must be positive", store.ErrInvalidInput)
	}
	if settings.Users == nil {
		settings.Users = []domain.StoreUser{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return w.buckets.Write(ctx, syncer.Change{Bucket: domain.BucketSettings, Data: raw})
}

// AddUser appends a store user. Admins come from the tenant login and are
// not stored here.
func (w *Workspace) AddUser(ctx context.Context, name string, role string) (domain.StoreUser, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.StoreUser{}, fmt.Errorf("%w: user name is required", store.ErrInvalidInput)
	}
	if role != domain.RoleVendedor && role != domain.RoleTecnico {
		return domain.StoreUser{}, fmt.Errorf("%w: role must be %s or %s", store.ErrInvalidInput, domain.RoleVendedor, domain.RoleTecnico)
	}
	settings, err := w.Settings(ctx)
	if err != nil {
		return domain.StoreUser{}, err
	}
	user := domain.StoreUser{ID: xid.New("user"), Name: name, Role: role}
	settings.Users = append(settings.Users, user)
	if err := w.SaveSettings(ctx, settings); err != nil {
		return domain.StoreUser{}, err
	}
	return user, nil
}

func (w *Workspace) RemoveUser(ctx context.Context, id string) error {
	settings, err := w.Settings(ctx)
	if err != nil {
		return err
	}
	for i, u := range settings.Users {
		if u.ID == id {
			settings.Users = append(settings.Users[:i:i], settings.Users[i+1:]...)
			return w.SaveSettings(ctx, settings)
		}
	}
	return store.ErrNotFound
}

func loadList[T any](ctx context.Context, buckets checkout.Buckets, bucket domain.Bucket) ([]T, error) {
	doc, err := buckets.Read(ctx, bucket)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if doc == nil {
		return out, nil
	}
	if err := json.Unmarshal(doc.Data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", bucket, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func saveList[T any](ctx context.Context, buckets checkout.Buckets, bucket domain.Bucket, list []T) error {
	if list == nil {
		list = []T{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return buckets.Write(ctx, syncer.Change{Bucket: bucket, Data: raw})
}
