package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

func TestTransitionToCompletedNeedsPhotos(t *testing.T) {
	o := domain.ServiceOrder{ID: "os1", Status: domain.OrderPending, FinishedPhotos: []string{"a.jpg"}}

	if _, err := Transition(o, domain.OrderCompleted); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected one photo to be rejected, got %v", err)
	}

	o.FinishedPhotos = append(o.FinishedPhotos, "b.jpg")
	done, err := Transition(o, domain.OrderCompleted)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if done.Status != domain.OrderCompleted {
		t.Fatalf("expected %q, got %q", domain.OrderCompleted, done.Status)
	}

	if _, err := Transition(o, "Cancelado"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}
	if o, err := Transition(o, domain.OrderDelivered); err != nil || o.Status != domain.OrderDelivered {
		t.Fatalf("expected delivered, got %+v %v", o, err)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o, err := Normalize(domain.ServiceOrder{CustomerName: " Maria ", PartsCost: 80, ServiceCost: 120}, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if o.ID == "" || o.Status != domain.OrderPending || !o.CreatedAt.Equal(now) {
		t.Fatalf("defaults not applied: %+v", o)
	}
	if o.Total != 200 || o.CustomerName != "Maria" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.Photos == nil || o.FinishedPhotos == nil {
		t.Fatalf("photo lists must encode as arrays")
	}

	if _, err := Normalize(domain.ServiceOrder{}, now); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected missing customer to fail, got %v", err)
	}
	if _, err := Normalize(domain.ServiceOrder{CustomerName: "x", PartsCost: -1}, now); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative cost to fail, got %v", err)
	}
}

func TestUpsertAndRemove(t *testing.T) {
	list := Upsert(nil, domain.ServiceOrder{ID: "a", CustomerName: "Ana"})
	list = Upsert(list, domain.ServiceOrder{ID: "b", CustomerName: "Bia"})
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("expected new order first, got %+v", list)
	}

	updated := Upsert(list, domain.ServiceOrder{ID: "a", CustomerName: "Ana Clara"})
	if len(updated) != 2 || updated[1].CustomerName != "Ana Clara" || list[1].CustomerName != "Ana" {
		t.Fatalf("unexpected upsert result: %+v / %+v", updated, list)
	}

	rest, err := Remove(updated, "b")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "a" {
		t.Fatalf("unexpected remove result: %+v", rest)
	}
	if _, err := Remove(rest, "b"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, ok := Find(rest, "a"); !ok {
		t.Fatalf("expected to find order a")
	}
}
