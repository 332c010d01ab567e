package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

type Period string

const (
	PeriodToday Period = "today"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case PeriodToday, PeriodMonth, PeriodAll:
		return p, nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, raw)
	}
}

// FilterSales keeps sales inside period, measured in now's location, whose
// product name or transaction code contains search.
func FilterSales(sales []domain.Sale, period Period, search string, now time.Time) []domain.Sale {
	search = strings.ToLower(strings.TrimSpace(search))
	loc := now.Location()
	y, m, d := now.Date()

	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		sy, sm, sd := s.Date.In(loc).Date()
		switch period {
		case PeriodToday:
			if sy != y || sm != m || sd != d {
				continue
			}
		case PeriodMonth:
			if sy != y || sm != m {
				continue
			}
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(s.ProductName), search) &&
			!strings.Contains(strings.ToLower(s.TransactionID), search) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SalesHistory filters the sales this engine knows about.
func (e *Engine) SalesHistory(period Period, search string) []domain.Sale {
	return FilterSales(e.sales, period, search, e.now())
}
