// Package finance aggregates revenue and profit across service orders,
// sales and the manual cash ledger.
package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/xid"
)

type Summary struct {
	ServiceRevenue float64 `json:"serviceRevenue"`
	PartsCost      float64 `json:"partsCost"`
	SalesRevenue   float64 `json:"salesRevenue"`
	SalesProfit    float64 `json:"salesProfit"`
	Income         float64 `json:"income"`
	Expense        float64 `json:"expense"`
	NetProfit      float64 `json:"netProfit"`
	DeliveredCount int     `json:"deliveredCount"`
	SalesCount     int     `json:"salesCount"`
}

// Summarize derives the financial summary. Only delivered orders count
// towards service revenue.
func Summarize(orders []domain.ServiceOrder, sales []domain.Sale, entries []domain.Transaction) Summary {
	var s Summary
	for _, o := range orders {
		if o.Status != domain.OrderDelivered {
			continue
		}
		s.ServiceRevenue += o.ServiceCost
		s.PartsCost += o.PartsCost
		s.DeliveredCount++
	}
	for _, sale := range sales {
		s.SalesRevenue += sale.FinalPrice
		s.SalesProfit += sale.FinalPrice - sale.CostAtSale*float64(sale.Quantity)
	}
	s.SalesCount = len(sales)
	for _, e := range entries {
		switch e.Type {
		case domain.EntryIncome:
			s.Income += e.Amount
		case domain.EntryExpense:
			s.Expense += e.Amount
		}
	}
	s.NetProfit = s.ServiceRevenue + s.SalesProfit + s.Income - s.Expense
	return s
}

func ParseEntryType(raw string) (domain.EntryType, error) {
	switch t := domain.EntryType(strings.ToLower(strings.TrimSpace(raw))); t {
	case domain.EntryIncome, domain.EntryExpense:
		return t, nil
	default:
		return "", fmt.Errorf("%w: entry type must be %q or %q", store.ErrInvalidInput, domain.EntryIncome, domain.EntryExpense)
	}
}

// NewEntry builds a manual ledger entry. A zero date means now.
func NewEntry(entryType domain.EntryType, description string, amount float64, category, paymentMethod string, date time.Time) (domain.Transaction, error) {
	if _, err := ParseEntryType(string(entryType)); err != nil {
		return domain.Transaction{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Transaction{}, fmt.Errorf("%w: description is required", store.ErrInvalidInput)
	}
	if amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return domain.Transaction{
		ID:            xid.New("txn"),
		Type:          entryType,
		Description:   description,
		Amount:        amount,
		Date:          date,
		Category:      strings.TrimSpace(category),
		PaymentMethod: strings.TrimSpace(paymentMethod),
	}, nil
}

// AddEntry returns a new slice with entry first.
func AddEntry(entries []domain.Transaction, entry domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(entries)+1)
	out = append(out, entry)
	return append(out, entries...)
}

func RemoveEntry(entries []domain.Transaction, id string) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return nil, fmt.Errorf("entry %s: %w", id, store.ErrNotFound)
	}
	return out, nil
}
