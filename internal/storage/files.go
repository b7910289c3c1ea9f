package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/integrator/internal/core"
)

// FileStore persists DiscoveredFiles. Inserts hitting the content-hash
// fence return core.ErrAlreadyExists so callers can skip the duplicate.
type FileStore interface {
	CreateFile(ctx context.Context, f *core.DiscoveredFile) error
	GetFile(ctx context.Context, id string) (*core.DiscoveredFile, error)
	UpdateFile(ctx context.Context, f *core.DiscoveredFile) error
	ListByRun(ctx context.Context, runID string) ([]*core.DiscoveredFile, error)
	// SoftDeleteFile tombstones the content hash so the unique index
	// frees the slot for re-discovery.
	SoftDeleteFile(ctx context.Context, id string, at time.Time) error
}

type postgresFileStore struct {
	db *sqlx.DB
}

// NewFileStore creates a Postgres-backed FileStore.
func NewFileStore(db *sqlx.DB) FileStore {
	return &postgresFileStore{db: db}
}

const fileCols = `id, run_id, connector_id, reference_code, original_filename, original_url, file_format, document_type, content_hash, extracted_text_hash, collision_dedupe, document_props, downloaded, downloaded_at, content_ref, upload_id, container_id, processing_failed, deleted, created_at, updated_at`

func (s *postgresFileStore) CreateFile(ctx context.Context, f *core.DiscoveredFile) error {
	query := `INSERT INTO discovered_files (` + fileCols + `)
		VALUES (:id, :run_id, :connector_id, :reference_code, :original_filename, :original_url, :file_format, :document_type, :content_hash, :extracted_text_hash, :collision_dedupe, :document_props, :downloaded, :downloaded_at, :content_ref, :upload_id, :container_id, :processing_failed, :deleted, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, f)
	return translateErr(err)
}

func (s *postgresFileStore) GetFile(ctx context.Context, id string) (*core.DiscoveredFile, error) {
	var f core.DiscoveredFile
	err := s.db.GetContext(ctx, &f, `SELECT `+fileCols+` FROM discovered_files WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &f, nil
}

func (s *postgresFileStore) UpdateFile(ctx context.Context, f *core.DiscoveredFile) error {
	query := `UPDATE discovered_files SET
			extracted_text_hash = :extracted_text_hash,
			document_props = :document_props,
			downloaded = :downloaded,
			downloaded_at = :downloaded_at,
			content_ref = :content_ref,
			upload_id = :upload_id,
			container_id = :container_id,
			processing_failed = :processing_failed,
			updated_at = :updated_at
		WHERE id = :id AND NOT deleted`
	res, err := s.db.NamedExecContext(ctx, query, f)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *postgresFileStore) ListByRun(ctx context.Context, runID string) ([]*core.DiscoveredFile, error) {
	var out []*core.DiscoveredFile
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+fileCols+` FROM discovered_files WHERE run_id = $1 ORDER BY created_at`, runID)
	return out, translateErr(err)
}

func (s *postgresFileStore) SoftDeleteFile(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovered_files
		 SET deleted = TRUE,
		     content_hash = content_hash || $1,
		     updated_at = $2
		 WHERE id = $3 AND NOT deleted`,
		fmt.Sprintf("##%d%s", at.Unix(), core.TombstoneSuffix), at, id)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
