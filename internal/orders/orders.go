// Package orders manages the service order bucket.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/xid"
)

// MinFinishedPhotos is how many photos of the repaired device an order
// needs before it can be marked completed.
const MinFinishedPhotos = 2

func Total(o domain.ServiceOrder) float64 {
	return o.PartsCost + o.ServiceCost
}

func ValidStatus(status string) bool {
	switch status {
	case domain.OrderPending, domain.OrderCompleted, domain.OrderDelivered:
		return true
	}
	return false
}

// Transition returns the order moved to status.
func Transition(o domain.ServiceOrder, status string) (domain.ServiceOrder, error) {
	if !ValidStatus(status) {
		return o, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}
	if status == domain.OrderCompleted && len(o.FinishedPhotos) < MinFinishedPhotos {
		return o, fmt.Errorf("%w: order needs at least %d finished photos", store.ErrInvalidInput, MinFinishedPhotos)
	}
	o.Status = status
	return o, nil
}

// Normalize fills defaults for a new or edited order and recomputes its total.
func Normalize(o domain.ServiceOrder, now time.Time) (domain.ServiceOrder, error) {
	o.CustomerName = strings.TrimSpace(o.CustomerName)
	if o.CustomerName == "" {
		return o, fmt.Errorf("%w: customer name is required", store.ErrInvalidInput)
	}
	if o.PartsCost < 0 || o.ServiceCost < 0 {
		return o, fmt.Errorf("%w: costs cannot be negative", store.ErrInvalidInput)
	}
	if o.ID == "" {
		o.ID = xid.New("os")
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	if !ValidStatus(o.Status) {
		return o, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, o.Status)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.Photos == nil {
		o.Photos = []string{}
	}
	if o.FinishedPhotos == nil {
		o.FinishedPhotos = []string{}
	}
	o.Total = Total(o)
	return o, nil
}

// Upsert replaces the order with the same id or prepends a new one. The
// input slice is not modified.
func Upsert(list []domain.ServiceOrder, o domain.ServiceOrder) []domain.ServiceOrder {
	out := make([]domain.ServiceOrder, 0, len(list)+1)
	for i, existing := range list {
		if existing.ID == o.ID {
			out = append(out, list[:i]...)
			out = append(out, o)
			return append(out, list[i+1:]...)
		}
	}
	out = append(out, o)
	return append(out, list...)
}

func Remove(list []domain.ServiceOrder, id string) ([]domain.ServiceOrder, error) {
	out := make([]domain.ServiceOrder, 0, len(list))
	found := false
	for _, o := range list {
		if o.ID == id {
			found = true
			continue
		}
		out = append(out, o)
	}
	if !found {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return out, nil
}

func Find(list []domain.ServiceOrder, id string) (domain.ServiceOrder, bool) {
	for _, o := range list {
		if o.ID == id {
			return o, true
		}
	}
	return domain.ServiceOrder{}, false
}
