package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

// Store keeps buckets, tenants, users and outbox intents in maps. The same
// type backs the dev-mode remote store and the in-memory device store.
type Store struct {
	mu              sync.RWMutex
	buckets         map[bucketKey]domain.BucketDocument
	tenantsByID     map[string]domain.Tenant
	usersByUsername map[string]domain.UserAccount
	outbox          map[string]domain.OutboxIntent
}

type bucketKey struct {
	tenantID string
	bucket   domain.Bucket
}

func New() *Store {
	return &Store{
		buckets:         make(map[bucketKey]domain.BucketDocument),
		tenantsByID:     make(map[string]domain.Tenant),
		usersByUsername: make(map[string]domain.UserAccount),
		outbox:          make(map[string]domain.OutboxIntent),
	}
}

// NewSeeded returns a store holding a demo tenant "loja1" for dev mode. The
// admin password comes from SEED_ADMIN_PASSWORD; a dev default is used when
// unset. The server uses PostgreSQL whenever DATABASE_URL is set.
func NewSeeded() *Store {
	s := New()
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Warn().Msg("[memory-store] using default dev credentials, set SEED_ADMIN_PASSWORD to override")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("[memory-store] failed to hash seed password")
	}

	now := time.Now().UTC()
	s.tenantsByID["loja1"] = domain.Tenant{
		ID:                "loja1",
		StoreName:         "Loja Demo",
		AdminUsername:     "loja1",
		AdminPasswordHash: string(hash),
		CreatedAt:         now,
	}
	s.usersByUsername["loja1"] = domain.UserAccount{
		Username:     "loja1",
		PasswordHash: string(hash),
		TenantID:     "loja1",
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
	}
	return s
}

func (s *Store) GetBucket(_ context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	return s.load(tenantID, bucket)
}

func (s *Store) PutBucket(_ context.Context, doc domain.BucketDocument) (*domain.BucketDocument, bool, error) {
	if doc.TenantID == "" || doc.Bucket == "" {
		return nil, false, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{tenantID: doc.TenantID, bucket: doc.Bucket}
	if existing, ok := s.buckets[key]; ok && existing.UpdatedAt.After(doc.UpdatedAt) {
		kept := cloneDocument(existing)
		return &kept, false, nil
	}
	s.buckets[key] = cloneDocument(doc)
	stored := cloneDocument(doc)
	return &stored, true, nil
}

func (s *Store) LoadBucket(_ context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	return s.load(tenantID, bucket)
}

func (s *Store) SaveBuckets(_ context.Context, docs []domain.BucketDocument, intents []domain.OutboxIntent) error {
	for _, doc := range docs {
		if doc.TenantID == "" || doc.Bucket == "" {
			return store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		s.buckets[bucketKey{tenantID: doc.TenantID, bucket: doc.Bucket}] = cloneDocument(doc)
	}
	for _, intent := range intents {
		s.outbox[intent.ID] = cloneIntent(intent)
	}
	return nil
}

func (s *Store) PendingOutbox(_ context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboxIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboxIntent, 0, len(s.outbox))
	for _, intent := range s.outbox {
		if intent.TenantID != tenantID || intent.NextAttemptAt.After(now) {
			continue
		}
		result = append(result, cloneIntent(intent))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountOutbox(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, intent := range s.outbox {
		if intent.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (s *Store) AckOutbox(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.outbox, id)
	}
	return nil
}

func (s *Store) MarkOutboxAttempt(_ context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.outbox[id]
	if !ok {
		return store.ErrNotFound
	}
	intent.Attempts++
	intent.NextAttemptAt = nextAttemptAt
	intent.LastError = lastError
	s.outbox[id] = intent
	return nil
}

func (s *Store) CreateTenant(_ context.Context, tenant domain.Tenant) (*domain.Tenant, error) {
	if tenant.ID == "" || tenant.StoreName == "" || tenant.AdminUsername == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenantsByID[tenant.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, existing := range s.tenantsByID {
		if existing.AdminUsername == tenant.AdminUsername {
			return nil, store.ErrConflict
		}
	}
	s.tenantsByID[tenant.ID] = tenant
	created := cloneTenant(tenant)
	return &created, nil
}

func (s *Store) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenantsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneTenant(tenant)
	return &found, nil
}

func (s *Store) ListTenants(_ context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	result := make([]domain.Tenant, 0, len(s.tenantsByID))
	for _, tenant := range s.tenantsByID {
		result = append(result, cloneTenant(tenant))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteTenant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenantsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tenantsByID, id)
	return nil
}

func (s *Store) DeactivateTenant(_ context.Context, id string, at time.Time) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenantsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tenant.DeletedAt == nil {
		deletedAt := at.UTC()
		tenant.DeletedAt = &deletedAt
		s.tenantsByID[id] = tenant
	}
	updated := cloneTenant(tenant)
	return &updated, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.TenantID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) FindUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) load(tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.buckets[bucketKey{tenantID: tenantID, bucket: bucket}]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneDocument(doc)
	return &found, nil
}

func cloneDocument(src domain.BucketDocument) domain.BucketDocument {
	dst := src
	dst.Data = append([]byte(nil), src.Data...)
	return dst
}

func cloneIntent(src domain.OutboxIntent) domain.OutboxIntent {
	dst := src
	dst.Data = append([]byte(nil), src.Data...)
	return dst
}

func cloneTenant(src domain.Tenant) domain.Tenant {
	dst := src
	if src.DeletedAt != nil {
		deletedAt := *src.DeletedAt
		dst.DeletedAt = &deletedAt
	}
	return dst
}
