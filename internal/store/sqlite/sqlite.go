// Package sqlite is the per-device Local Store. Buckets and their outbox
// intents live in one SQLite file so a bucket write and its intent commit
// together.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 0 - buckets and outbox
// 1 - device table holding the device id
const currentSchemaVersion = 1

type Store struct {
	db *sql.DB
}

// Open creates or opens the device database at path, applying pragmas and
// migrations. Safe to call on an existing file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DeviceID returns the id generated the first time this database was opened.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM device LIMIT 1`).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) LoadBucket(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	var (
		data      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data_json, updated_at FROM buckets
		WHERE tenant_id = ? AND store_key = ?
	`, tenantID, string(bucket)).Scan(&data, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &domain.BucketDocument{
		TenantID:  tenantID,
		Bucket:    bucket,
		Data:      []byte(data),
		UpdatedAt: fromNanos(updatedAt),
	}, nil
}

func (s *Store) SaveBuckets(ctx context.Context, docs []domain.BucketDocument, intents []domain.OutboxIntent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if doc.TenantID == "" || doc.Bucket == "" {
			return store.ErrInvalidInput
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO buckets (tenant_id, store_key, data_json, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, store_key)
			DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at
		`, doc.TenantID, string(doc.Bucket), string(doc.Data), toNanos(doc.UpdatedAt)); err != nil {
			return fmt.Errorf("save bucket %s: %w", doc.Bucket, err)
		}
	}

	for _, intent := range intents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (id, tenant_id, store_key, data_json, updated_at, created_at, attempts, next_attempt_at, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, intent.ID, intent.TenantID, string(intent.Bucket), string(intent.Data),
			toNanos(intent.UpdatedAt), toNanos(intent.CreatedAt), intent.Attempts,
			toNanos(intent.NextAttemptAt), intent.LastError); err != nil {
			return fmt.Errorf("append outbox %s: %w", intent.Bucket, err)
		}
	}

	return tx.Commit()
}

func (s *Store) PendingOutbox(ctx context.Context, tenantID string, now time.Time, limit int) ([]domain.OutboxIntent, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_key, data_json, updated_at, created_at, attempts, next_attempt_at, last_error
		FROM outbox
		WHERE tenant_id = ? AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?
	`, tenantID, toNanos(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.OutboxIntent, 0, limit)
	for rows.Next() {
		var (
			intent                          domain.OutboxIntent
			bucket, data                    string
			updatedAt, createdAt, nextTryAt int64
		)
		if err := rows.Scan(&intent.ID, &bucket, &data, &updatedAt, &createdAt, &intent.Attempts, &nextTryAt, &intent.LastError); err != nil {
			return nil, err
		}
		intent.TenantID = tenantID
		intent.Bucket = domain.Bucket(bucket)
		intent.Data = []byte(data)
		intent.UpdatedAt = fromNanos(updatedAt)
		intent.CreatedAt = fromNanos(createdAt)
		intent.NextAttemptAt = fromNanos(nextTryAt)
		result = append(result, intent)
	}
	return result, rows.Err()
}

func (s *Store) CountOutbox(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

func (s *Store) AckOutbox(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (s *Store) MarkOutboxAttempt(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?
		WHERE id = ?
	`, toNanos(nextAttemptAt), lastError, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate v1: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS device (id TEXT PRIMARY KEY, created_at INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("migrate v1: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO device (id, created_at) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM device)`,
		uuid.NewString(), time.Now().UTC().UnixNano()); err != nil {
		return fmt.Errorf("migrate v1: %w", err)
	}
	return tx.Commit()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
