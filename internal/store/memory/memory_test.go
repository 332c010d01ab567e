package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

func TestPutBucketKeepsNewerCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	if _, applied, err := s.PutBucket(ctx, domain.BucketDocument{TenantID: "loja1", Bucket: domain.BucketSales, Data: json.RawMessage(`["t2"]`), UpdatedAt: t2}); err != nil || !applied {
		t.Fatalf("expected first put to apply, applied=%t err=%v", applied, err)
	}
	stored, applied, err := s.PutBucket(ctx, domain.BucketDocument{TenantID: "loja1", Bucket: domain.BucketSales, Data: json.RawMessage(`["t1"]`), UpdatedAt: t1})
	if err != nil {
		t.Fatalf("put older: %v", err)
	}
	if applied {
		t.Fatalf("expected older write to be rejected")
	}
	if string(stored.Data) != `["t2"]` {
		t.Fatalf("expected stored t2 content, got %s", stored.Data)
	}
}

func TestPutBucketSameTimestampIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := domain.BucketDocument{TenantID: "loja1", Bucket: domain.BucketProducts, Data: json.RawMessage(`[{"id":"p1"}]`), UpdatedAt: time.Now().UTC()}

	for i := 0; i < 2; i++ {
		if _, applied, err := s.PutBucket(ctx, doc); err != nil || !applied {
			t.Fatalf("push %d: applied=%t err=%v", i, applied, err)
		}
	}
	got, err := s.GetBucket(ctx, "loja1", domain.BucketProducts)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != string(doc.Data) {
		t.Fatalf("expected %s, got %s", doc.Data, got.Data)
	}
}

func TestStoredDocumentsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	data := json.RawMessage(`[1]`)
	if err := s.SaveBuckets(ctx, []domain.BucketDocument{{TenantID: "t", Bucket: domain.BucketSales, Data: data}}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	data[1] = '9'

	got, err := s.LoadBucket(ctx, "t", domain.BucketSales)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.Data) != `[1]` {
		t.Fatalf("caller mutation leaked into store: %s", got.Data)
	}
}

func TestTenantLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateTenant(ctx, domain.Tenant{ID: "t1", StoreName: "Loja", AdminUsername: "loja", CreatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTenant(ctx, domain.Tenant{ID: "t2", StoreName: "Outra", AdminUsername: "loja", CreatedAt: now}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected admin username conflict, got %v", err)
	}

	deactivated, err := s.DeactivateTenant(ctx, "t1", now)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active() {
		t.Fatalf("expected tenant to be soft deleted")
	}

	if err := s.DeleteTenant(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTenant(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSeededTenantHasHashedAdmin(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "seed-secret")
	s := NewSeeded()

	user, err := s.FindUser(context.Background(), "loja1")
	if err != nil {
		t.Fatalf("find seeded user: %v", err)
	}
	if user.PasswordHash == "seed-secret" || user.TenantID != "loja1" {
		t.Fatalf("unexpected seeded user %+v", user)
	}
}
