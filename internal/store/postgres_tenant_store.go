package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// PostgresTenantStore implements TenantStore for PostgreSQL
type PostgresTenantStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresTenantStore creates a new PostgreSQL tenant store
func NewPostgresTenantStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresTenantStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresTenantStore{
		pool:   pool,
		logger: logger,
	}, nil
}

const tenantColumns = `id, name, identifiers, connection, settings, state, created_at, updated_at, version`

const tenantSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	identifiers TEXT[] NOT NULL DEFAULT '{}',
	connection  JSONB NOT NULL DEFAULT '{}',
	settings    JSONB,
	state       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	version     BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tenants_identifiers ON tenants USING GIN (identifiers);
`

// EnsureSchema creates the tenants table if it does not exist yet
func (s *PostgresTenantStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, tenantSchema); err != nil {
		return fmt.Errorf("failed to create tenant schema: %w", err)
	}
	return nil
}

// GetByIdentifier looks a tenant up by ID or any registered alias
func (s *PostgresTenantStore) GetByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1 OR $1 = ANY(identifiers)
	`
	return s.queryOne(ctx, query, identifier)
}

// GetByID retrieves a tenant by ID
func (s *PostgresTenantStore) GetByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1
	`
	return s.queryOne(ctx, query, tenantID)
}

func (s *PostgresTenantStore) queryOne(ctx context.Context, query string, arg string) (*model.Tenant, error) {
	tenant, err := scanTenant(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var (
		tenant      model.Tenant
		connRaw     []byte
		settingsRaw []byte
		state       string
	)
	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Identifiers,
		&connRaw,
		&settingsRaw,
		&state,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
		&tenant.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(connRaw, &tenant.Connection); err != nil {
		return nil, fmt.Errorf("failed to decode connection info: %w", err)
	}
	if len(settingsRaw) > 0 {
		if err := json.Unmarshal(settingsRaw, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
	}
	tenant.State = model.TenantState(state)

	return &tenant, nil
}

// Create inserts a new tenant
func (s *PostgresTenantStore) Create(ctx context.Context, tenant *model.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	connRaw, err := json.Marshal(tenant.Connection)
	if err != nil {
		return fmt.Errorf("failed to encode connection info: %w", err)
	}
	settingsRaw, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Identifiers,
		connRaw,
		settingsRaw,
		string(tenant.State),
		tenant.CreatedAt,
		tenant.UpdatedAt,
		tenant.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}

	return nil
}

// Update replaces a tenant's row, enforcing optimistic locking
func (s *PostgresTenantStore) Update(ctx context.Context, tenant *model.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, identifiers = $3, connection = $4, settings = $5,
		    state = $6, updated_at = $7, version = $8
		WHERE id = $1 AND version = $9
	`

	connRaw, err := json.Marshal(tenant.Connection)
	if err != nil {
		return fmt.Errorf("failed to encode connection info: %w", err)
	}
	settingsRaw, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	result, err := s.pool.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Identifiers,
		connRaw,
		settingsRaw,
		string(tenant.State),
		tenant.UpdatedAt,
		tenant.Version,
		tenant.Version-1, // Optimistic locking
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	return nil
}

// Delete removes a tenant's row
func (s *PostgresTenantStore) Delete(ctx context.Context, tenantID string) error {
	query := `DELETE FROM tenants WHERE id = $1`
	result, err := s.pool.Exec(ctx, query, tenantID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns all tenants ordered by ID
func (s *PostgresTenantStore) List(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		ORDER BY id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]*model.Tenant, 0)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, rows.Err()
}

// Ping checks the database connection
func (s *PostgresTenantStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresTenantStore) Close() {
	s.pool.Close()
}
