package tenantdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

const entityColumns = "entity_type, id, tenant_id, doc, created_at, updated_at"

const entitySchema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT NOT NULL,
	id          TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	doc         JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entity_type, id)
);

CREATE INDEX IF NOT EXISTS idx_entities_tenant ON entities(tenant_id);
CREATE INDEX IF NOT EXISTS idx_entities_doc ON entities USING GIN (doc);
`

// PostgresEntityStore stores entity records in the tenant's own
// database. The tenant context carried by ctx decides which database
// every call lands on, so a request can never read another tenant's
// rows even before the scope checks run.
type PostgresEntityStore struct {
	router *Router
	logger *zap.Logger
}

// NewPostgresEntityStore creates an entity store routed through the
// given connection router
func NewPostgresEntityStore(router *Router, logger *zap.Logger) *PostgresEntityStore {
	return &PostgresEntityStore{
		router: router,
		logger: logger,
	}
}

// EnsureSchema creates the entities table in the tenant's database.
// Called when a tenant finishes provisioning.
func (s *PostgresEntityStore) EnsureSchema(ctx context.Context) error {
	lease, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	if _, err := lease.Conn().Exec(ctx, entitySchema); err != nil {
		return fmt.Errorf("failed to create entity schema: %w", err)
	}
	s.logger.Info("entity schema ensured", zap.String("tenant_id", lease.TenantID()))
	return nil
}

// Query returns all records of the given type matching the predicate.
// The id and tenant_id keys match columns, every other key matches a
// document field by JSONB containment.
func (s *PostgresEntityStore) Query(ctx context.Context, entityType string, pred store.Predicate) ([]*model.EntityRecord, error) {
	lease, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	query := fmt.Sprintf("SELECT %s FROM entities WHERE entity_type = $1", entityColumns)
	args := []interface{}{entityType}

	docPred := make(map[string]interface{})
	for key, value := range pred {
		switch key {
		case "tenant_id":
			args = append(args, value)
			query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
		case "id":
			args = append(args, value)
			query += fmt.Sprintf(" AND id = $%d", len(args))
		default:
			docPred[key] = value
		}
	}
	if len(docPred) > 0 {
		buf, err := json.Marshal(docPred)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal predicate: %w", err)
		}
		args = append(args, buf)
		query += fmt.Sprintf(" AND doc @> $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := lease.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	records := make([]*model.EntityRecord, 0)
	for rows.Next() {
		rec, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entity rows: %w", err)
	}
	return records, nil
}

// Load retrieves a single record by type and ID
func (s *PostgresEntityStore) Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error) {
	lease, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	query := fmt.Sprintf("SELECT %s FROM entities WHERE entity_type = $1 AND id = $2", entityColumns)
	rec, err := scanEntity(lease.Conn().QueryRow(ctx, query, entityType, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Persist inserts or replaces a record. The conflict branch only fires
// when the stored row carries the same tenant tag, so a retag can never
// happen at the SQL level either.
func (s *PostgresEntityStore) Persist(ctx context.Context, rec *model.EntityRecord) error {
	lease, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	doc, err := json.Marshal(rec.Doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	query := `
		INSERT INTO entities (entity_type, id, tenant_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_type, id) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
		WHERE entities.tenant_id = EXCLUDED.tenant_id`

	tag, err := lease.Conn().Exec(ctx, query,
		rec.Type, rec.ID, rec.TenantID, doc, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s/%s is owned by another tenant", rec.Type, rec.ID)
	}
	return nil
}

// Delete removes a record. The tenant tag from the request context is
// part of the WHERE clause, so a foreign row reads as absent.
func (s *PostgresEntityStore) Delete(ctx context.Context, entityType, id string) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}

	lease, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	tag, err := lease.Conn().Exec(ctx,
		"DELETE FROM entities WHERE entity_type = $1 AND id = $2 AND tenant_id = $3",
		entityType, id, tc.TenantID())
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresEntityStore) acquire(ctx context.Context) (*Lease, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.router.Acquire(ctx, tc)
}

func scanEntity(row pgx.Row) (*model.EntityRecord, error) {
	var (
		rec       model.EntityRecord
		docRaw    []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&rec.Type, &rec.ID, &rec.TenantID, &docRaw, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity row: %w", err)
	}
	if len(docRaw) > 0 {
		if err := json.Unmarshal(docRaw, &rec.Doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
