package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetBucket(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error) {
	var (
		data      string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data_json, updated_at
		FROM cloud_data
		WHERE tenant_id = $1 AND store_key = $2
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
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// PutBucket upserts the document. The row is only replaced when the incoming
// updated_at is not older than the stored one.
func (s *Store) PutBucket(ctx context.Context, doc domain.BucketDocument) (*domain.BucketDocument, bool, error) {
	if doc.TenantID == "" || doc.Bucket == "" {
		return nil, false, store.ErrInvalidInput
	}

	var (
		data      string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cloud_data (tenant_id, store_key, data_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, store_key)
		DO UPDATE SET data_json = EXCLUDED.data_json, updated_at = EXCLUDED.updated_at
		WHERE cloud_data.updated_at <= EXCLUDED.updated_at
		RETURNING data_json, updated_at
	`, doc.TenantID, string(doc.Bucket), string(doc.Data), doc.UpdatedAt.UTC()).Scan(&data, &updatedAt)
	if err == nil {
		return &domain.BucketDocument{
			TenantID:  doc.TenantID,
			Bucket:    doc.Bucket,
			Data:      []byte(data),
			UpdatedAt: updatedAt.UTC(),
		}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isForeignKeyViolation(err) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}

	existing, err := s.GetBucket(ctx, doc.TenantID, doc.Bucket)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant domain.Tenant) (*domain.Tenant, error) {
	if tenant.ID == "" || tenant.StoreName == "" || tenant.AdminUsername == "" {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, store_name, admin_username, admin_password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tenant.ID, tenant.StoreName, tenant.AdminUsername, tenant.AdminPasswordHash, tenant.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := tenant
	return &created, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_name, admin_username, admin_password_hash, created_at, deleted_at
		FROM tenants
		WHERE id = $1
	`, id)
	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_name, admin_username, admin_password_hash, created_at, deleted_at
		FROM tenants
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]domain.Tenant, 0, 32)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
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

func (s *Store) DeactivateTenant(ctx context.Context, id string, at time.Time) (*domain.Tenant, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return nil, err
	}
	return s.GetTenant(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.TenantID == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, tenant_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.PasswordHash, user.TenantID, user.Role, user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, tenant_id, role, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.PasswordHash, &user.TenantID, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, passwordHash)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		tenant    domain.Tenant
		deletedAt sql.NullTime
	)
	if err := row.Scan(&tenant.ID, &tenant.StoreName, &tenant.AdminUsername, &tenant.AdminPasswordHash, &tenant.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	tenant.CreatedAt = tenant.CreatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		tenant.DeletedAt = &at
	}
	return &tenant, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
