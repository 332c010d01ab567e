// Package inventory keeps per-product stock quantities for one tenant.
package inventory

import (
	"fmt"
	"strings"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

// Ledger is the products bucket held in memory. It is not safe for
// concurrent use; callers mutate a Clone and swap it in on success.
type Ledger struct {
	products []domain.Product
	index    map[string]int
}

type Summary struct {
	TotalStockInvestment float64 `json:"totalStockInvestment"`
	TotalPotentialProfit float64 `json:"totalPotentialProfit"`
	ItemCount            int     `json:"itemCount"`
}

func New(products []domain.Product) *Ledger {
	l := &Ledger{
		products: make([]domain.Product, len(products)),
		index:    make(map[string]int, len(products)),
	}
	copy(l.products, products)
	for i, p := range l.products {
		l.index[p.ID] = i
	}
	return l
}

// Products returns a copy in stored order.
func (l *Ledger) Products() []domain.Product {
	out := make([]domain.Product, len(l.products))
	copy(out, l.products)
	return out
}

func (l *Ledger) Get(productID string) (domain.Product, bool) {
	i, ok := l.index[productID]
	if !ok {
		return domain.Product{}, false
	}
	return l.products[i], true
}

func (l *Ledger) Clone() *Ledger {
	return New(l.products)
}

// Reserve checks that qty more units fit on top of the claimed ones.
func (l *Ledger) Reserve(productID string, qty int, claimed int) error {
	p, ok := l.Get(productID)
	if !ok {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if qty < 1 || claimed < 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if claimed+qty > p.Quantity {
		return fmt.Errorf("%s: %w", p.Name, store.ErrInsufficientStock)
	}
	return nil
}

// CommitDecrement subtracts qty only while the stored quantity still equals
// expected. A mismatch means the stock moved since it was reserved.
func (l *Ledger) CommitDecrement(productID string, qty int, expected int) error {
	i, ok := l.index[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	current := l.products[i].Quantity
	if current != expected || current-qty < 0 {
		return fmt.Errorf("%s: %w (have %d, expected %d, need %d)", l.products[i].Name, store.ErrInsufficientStock, current, expected, qty)
	}
	l.products[i].Quantity = current - qty
	return nil
}

func (l *Ledger) Reverse(productID string, qty int) error {
	i, ok := l.index[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	l.products[i].Quantity += qty
	return nil
}

// Upsert adds a product or replaces the one with the same id. New products
// are prepended, matching the stock screen order.
func (l *Ledger) Upsert(p domain.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("%w: product id and name are required", store.ErrInvalidInput)
	}
	if p.Quantity < 0 || p.CostPrice < 0 || p.SalePrice < 0 {
		return fmt.Errorf("%w: quantity and prices cannot be negative", store.ErrInvalidInput)
	}
	if i, ok := l.index[p.ID]; ok {
		l.products[i] = p
		return nil
	}
	l.products = append([]domain.Product{p}, l.products...)
	l.reindex()
	return nil
}

func (l *Ledger) Remove(productID string) error {
	i, ok := l.index[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	l.products = append(l.products[:i], l.products[i+1:]...)
	l.reindex()
	return nil
}

func (l *Ledger) Summary() Summary {
	var s Summary
	for _, p := range l.products {
		s.TotalStockInvestment += p.CostPrice * float64(p.Quantity)
		s.TotalPotentialProfit += (p.SalePrice - p.CostPrice) * float64(p.Quantity)
	}
	s.ItemCount = len(l.products)
	return s
}

func (l *Ledger) reindex() {
	l.index = make(map[string]int, len(l.products))
	for i, p := range l.products {
		l.index[p.ID] = i
	}
}
