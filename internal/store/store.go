package store

import (
	"context"
	"errors"
	"time"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("already exists")
	ErrPersistence       = errors.New("local persistence failed")
)

// BucketStore holds whole-document buckets keyed by (tenant, bucket).
type BucketStore interface {
	GetBucket(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error)
	// PutBucket upserts doc unless the stored copy is strictly newer. It returns
	// the stored document and whether doc was applied.
	PutBucket(ctx context.Context, doc domain.BucketDocument) (*domain.BucketDocument, bool, error)
}

type TenantRegistry interface {
	CreateTenant(ctx context.Context, tenant domain.Tenant) (*domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	DeactivateTenant(ctx context.Context, id string, at time.Time) (*domain.Tenant, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}

// Repository is the authoritative remote store.
type Repository interface {
	BucketStore
	TenantRegistry
}

// LocalStore is the per-device store. SaveBuckets writes documents and their
// outbox intents in one transaction.
type LocalStore interface {
	LoadBucket(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error)
	SaveBuckets(ctx context.Context, docs []domain.BucketDocument, intents []domain.OutboxIntent) error
	PendingOutbox(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboxIntent, error)
	CountOutbox(ctx context.Context, tenantID string) (int, error)
	AckOutbox(ctx context.Context, ids []string) error
	MarkOutboxAttempt(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
}
