// Package checkout runs the point-of-sale cart for one session: building a
// cart against stock, taking payment, and cancelling past sales.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/inventory"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/syncer"
	"github.com/KiritoRJ/assistenciatecnica/internal/xid"
)

var (
	// ErrUnauthorized is returned when admin re-authentication fails.
	ErrUnauthorized = errors.New("admin authorization required")
	ErrInvalidState = errors.New("operation not allowed in current cart state")
	ErrEmptyCart    = errors.New("cart is empty")
)

type State string

const (
	StateBuildingCart    State = "building_cart"
	StateAwaitingPayment State = "awaiting_payment"
	StateFinalized       State = "finalized"
)

const defaultSeller = "Sistema"

// Buckets is the persistence the engine needs. The sync engine satisfies it.
type Buckets interface {
	Read(ctx context.Context, bucket domain.Bucket) (*domain.BucketDocument, error)
	Write(ctx context.Context, changes ...syncer.Change) error
}

type Reauthenticator interface {
	VerifyAdminSecret(secret string) bool
}

// Line is one cart row. SeenQuantity is the stock level read when the
// product first entered the cart; Finalize commits against it.
type Line struct {
	Product      domain.Product `json:"product"`
	Quantity     int            `json:"quantity"`
	SeenQuantity int            `json:"seenQuantity"`
}

type Payment struct {
	Method         string
	Seller         string
	AmountReceived float64
}

type Receipt struct {
	TransactionID string        `json:"transactionId"`
	Date          time.Time     `json:"date"`
	Sales         []domain.Sale `json:"sales"`
	Total         float64       `json:"total"`
	PaymentMethod string        `json:"paymentMethod"`
	SellerName    string        `json:"sellerName"`
	// ChangeDue is only computed for cash and never persisted.
	ChangeDue float64 `json:"changeDue"`
}

type Engine struct {
	buckets Buckets
	auth    Reauthenticator

	ledger *inventory.Ledger
	sales  []domain.Sale
	lines  []Line
	state  State

	now     func() time.Time
	newCode func() string
	newID   func() string
}

func New(buckets Buckets, auth Reauthenticator, products []domain.Product, sales []domain.Sale) *Engine {
	return &Engine{
		buckets: buckets,
		auth:    auth,
		ledger:  inventory.New(products),
		sales:   append([]domain.Sale(nil), sales...),
		state:   StateBuildingCart,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: func() string { return xid.Code(6) },
		newID:   func() string { return xid.New("sale") },
	}
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Lines() []Line {
	return append([]Line(nil), e.lines...)
}

func (e *Engine) Products() []domain.Product {
	return e.ledger.Products()
}

func (e *Engine) Sales() []domain.Sale {
	return append([]domain.Sale(nil), e.sales...)
}

func (e *Engine) Total() float64 {
	total := 0.0
	for _, line := range e.lines {
		total += line.Product.SalePrice * float64(line.Quantity)
	}
	return total
}

// AddToCart adds one unit of the product. A finalized cart starts over.
func (e *Engine) AddToCart(productID string) error {
	if e.state == StateFinalized {
		e.state = StateBuildingCart
	}
	if e.state != StateBuildingCart {
		return ErrInvalidState
	}

	idx := e.lineIndex(productID)
	claimed := 0
	if idx >= 0 {
		claimed = e.lines[idx].Quantity
	}
	if err := e.ledger.Reserve(productID, 1, claimed); err != nil {
		return err
	}

	if idx >= 0 {
		e.lines[idx].Quantity++
		return nil
	}
	product, _ := e.ledger.Get(productID)
	e.lines = append(e.lines, Line{Product: product, Quantity: 1, SeenQuantity: product.Quantity})
	return nil
}

// UpdateQuantity moves a line by delta. Results outside 1..stock are ignored.
func (e *Engine) UpdateQuantity(productID string, delta int) error {
	if e.state != StateBuildingCart {
		return ErrInvalidState
	}
	idx := e.lineIndex(productID)
	if idx < 0 {
		return fmt.Errorf("cart line %s: %w", productID, store.ErrNotFound)
	}
	next := e.lines[idx].Quantity + delta
	if next < 1 || next > e.lines[idx].Product.Quantity {
		return nil
	}
	e.lines[idx].Quantity = next
	return nil
}

func (e *Engine) RemoveFromCart(productID string) error {
	if e.state != StateBuildingCart {
		return ErrInvalidState
	}
	idx := e.lineIndex(productID)
	if idx < 0 {
		return fmt.Errorf("cart line %s: %w", productID, store.ErrNotFound)
	}
	e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
	return nil
}

func (e *Engine) BeginPayment() error {
	if e.state != StateBuildingCart {
		return ErrInvalidState
	}
	if len(e.lines) == 0 {
		return ErrEmptyCart
	}
	e.state = StateAwaitingPayment
	return nil
}

func (e *Engine) BackToCart() error {
	if e.state != StateAwaitingPayment {
		return ErrInvalidState
	}
	e.state = StateBuildingCart
	return nil
}

// Finalize records one sale per cart line and decrements stock. The stock
// is re-read and each line is committed only if it still matches what the
// cart saw. On any error the cart, stock and state are left as they were.
func (e *Engine) Finalize(ctx context.Context, payment Payment) (Receipt, error) {
	if e.state != StateAwaitingPayment {
		return Receipt{}, ErrInvalidState
	}
	if !domain.IsSupportedPaymentMethod(payment.Method) {
		return Receipt{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, payment.Method)
	}
	seller := strings.TrimSpace(payment.Seller)
	if seller == "" {
		seller = defaultSeller
	}

	products, sales, err := e.load(ctx)
	if err != nil {
		return Receipt{}, err
	}
	next := inventory.New(products)
	for _, line := range e.lines {
		if err := next.CommitDecrement(line.Product.ID, line.Quantity, line.SeenQuantity); err != nil {
			return Receipt{}, err
		}
	}

	code := e.newCode()
	date := e.now()
	created := make([]domain.Sale, 0, len(e.lines))
	total := 0.0
	for _, line := range e.lines {
		finalPrice := line.Product.SalePrice * float64(line.Quantity)
		total += finalPrice
		created = append(created, domain.Sale{
			ID:            e.newID(),
			ProductID:     line.Product.ID,
			ProductName:   line.Product.Name,
			Date:          date,
			Quantity:      line.Quantity,
			OriginalPrice: line.Product.SalePrice,
			Discount:      0,
			FinalPrice:    finalPrice,
			CostAtSale:    line.Product.CostPrice,
			PaymentMethod: payment.Method,
			SellerName:    seller,
			TransactionID: code,
		})
	}
	// Newest sales first.
	nextSales := append(created, sales...)

	if err := e.persist(ctx, next, nextSales); err != nil {
		return Receipt{}, err
	}

	e.ledger = next
	e.sales = nextSales
	e.lines = nil
	e.state = StateFinalized

	receipt := Receipt{
		TransactionID: code,
		Date:          date,
		Sales:         created,
		Total:         total,
		PaymentMethod: payment.Method,
		SellerName:    seller,
	}
	if payment.Method == domain.PaymentCash {
		receipt.ChangeDue = math.Max(0, payment.AmountReceived-total)
	}
	log.Info().Str("transaction", code).Int("lines", len(created)).Float64("total", total).Msg("[checkout] sale finalized")
	return receipt, nil
}

// CancelSale removes a sale row and returns its units to stock, after the
// tenant admin re-authenticates.
func (e *Engine) CancelSale(ctx context.Context, saleID string, adminSecret string) error {
	if e.auth == nil || !e.auth.VerifyAdminSecret(adminSecret) {
		return ErrUnauthorized
	}

	products, sales, err := e.load(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, s := range sales {
		if s.ID == saleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("sale %s: %w", saleID, store.ErrNotFound)
	}
	sale := sales[idx]

	next := inventory.New(products)
	if err := next.Reverse(sale.ProductID, sale.Quantity); err != nil {
		return err
	}
	nextSales := make([]domain.Sale, 0, len(sales)-1)
	nextSales = append(nextSales, sales[:idx]...)
	nextSales = append(nextSales, sales[idx+1:]...)

	if err := e.persist(ctx, next, nextSales); err != nil {
		return err
	}
	e.ledger = next
	e.sales = nextSales
	log.Info().Str("sale", saleID).Str("product", sale.ProductID).Int("quantity", sale.Quantity).Msg("[checkout] sale cancelled")
	return nil
}

func (e *Engine) load(ctx context.Context) ([]domain.Product, []domain.Sale, error) {
	if e.buckets == nil {
		return e.ledger.Products(), e.Sales(), nil
	}
	var products []domain.Product
	found, err := readBucket(ctx, e.buckets, domain.BucketProducts, &products)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		products = e.ledger.Products()
	}
	var sales []domain.Sale
	found, err = readBucket(ctx, e.buckets, domain.BucketSales, &sales)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		sales = e.Sales()
	}
	return products, sales, nil
}

func (e *Engine) persist(ctx context.Context, ledger *inventory.Ledger, sales []domain.Sale) error {
	productsJSON, err := json.Marshal(ledger.Products())
	if err != nil {
		return err
	}
	salesJSON, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	if e.buckets == nil {
		return nil
	}
	return e.buckets.Write(ctx,
		syncer.Change{Bucket: domain.BucketSales, Data: salesJSON},
		syncer.Change{Bucket: domain.BucketProducts, Data: productsJSON},
	)
}

// readBucket decodes bucket into dest, which must be a fresh value. It
// reports false when the bucket is absent.
func readBucket(ctx context.Context, buckets Buckets, bucket domain.Bucket, dest any) (bool, error) {
	doc, err := buckets.Read(ctx, bucket)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if err := json.Unmarshal(doc.Data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", bucket, err)
	}
	return true, nil
}

func (e *Engine) lineIndex(productID string) int {
	for i, line := range e.lines {
		if line.Product.ID == productID {
			return i
		}
	}
	return -1
}
