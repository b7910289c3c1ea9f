package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/integrator/internal/core"
)

// EntityStore persists per-Run master-data observations and the audit
// trail of requests issued to the downstream core.
type EntityStore interface {
	CreateEntity(ctx context.Context, e *core.DiscoveredEntity) error
	ListEntitiesByRun(ctx context.Context, runID string) ([]*core.DiscoveredEntity, error)
	RecordExportRequest(ctx context.Context, r *core.ExportRequest) error
	ListExportRequestsByRun(ctx context.Context, runID string) ([]*core.ExportRequest, error)
}

type postgresEntityStore struct {
	db *sqlx.DB
}

// NewEntityStore creates a Postgres-backed EntityStore.
func NewEntityStore(db *sqlx.DB) EntityStore {
	return &postgresEntityStore{db: db}
}

func (s *postgresEntityStore) CreateEntity(ctx context.Context, e *core.DiscoveredEntity) error {
	query := `INSERT INTO discovered_entities (id, run_id, entity_type, source_entity_id, payload, created_at)
		VALUES (:id, :run_id, :entity_type, :source_entity_id, :payload, :created_at)`
	_, err := s.db.NamedExecContext(ctx, query, e)
	return translateErr(err)
}

func (s *postgresEntityStore) ListEntitiesByRun(ctx context.Context, runID string) ([]*core.DiscoveredEntity, error) {
	var out []*core.DiscoveredEntity
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, run_id, entity_type, source_entity_id, payload, created_at
		 FROM discovered_entities WHERE run_id = $1 ORDER BY created_at`, runID)
	return out, translateErr(err)
}

func (s *postgresEntityStore) RecordExportRequest(ctx context.Context, r *core.ExportRequest) error {
	query := `INSERT INTO export_requests (id, run_id, method, path, request_body, status_code, response_body, created_at)
		VALUES (:id, :run_id, :method, :path, :request_body, :status_code, :response_body, :created_at)`
	_, err := s.db.NamedExecContext(ctx, query, r)
	return translateErr(err)
}

func (s *postgresEntityStore) ListExportRequestsByRun(ctx context.Context, runID string) ([]*core.ExportRequest, error) {
	var out []*core.ExportRequest
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, run_id, method, path, request_body, status_code, response_body, created_at
		 FROM export_requests WHERE run_id = $1 ORDER BY created_at`, runID)
	return out, translateErr(err)
}
