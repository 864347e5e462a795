package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
)

// WorkspaceRepository tracks open documents in open_documents.
type WorkspaceRepository struct {
	db DBTX
}

func NewWorkspaceRepository(db DBTX) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) WithTx(tx *sql.Tx) *WorkspaceRepository {
	return &WorkspaceRepository{db: tx}
}

// Exists reports whether filename is tracked.
func (r *WorkspaceRepository) Exists(ctx context.Context, filename string) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM open_documents WHERE filename = $1`, filename).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up document: %w", err)
	}
	return true, nil
}

// IsActive reports whether filename is tracked and active.
func (r *WorkspaceRepository) IsActive(ctx context.Context, filename string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT active FROM open_documents WHERE filename = $1`, filename).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up document: %w", err)
	}
	return active, nil
}

func (r *WorkspaceRepository) Insert(ctx context.Context, filename, displayName string, active bool, openedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO open_documents (filename, display_name, active, opened)
		VALUES ($1, $2, $3, $4)`,
		filename, displayName, active, openedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert open document: %w", err)
	}
	return nil
}

// DeactivateAll clears the active flag on every document.
func (r *WorkspaceRepository) DeactivateAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE open_documents SET active = $1 WHERE active = $2`, false, true); err != nil {
		return fmt.Errorf("failed to deactivate documents: %w", err)
	}
	return nil
}

func (r *WorkspaceRepository) Activate(ctx context.Context, filename string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE open_documents SET active = $1 WHERE filename = $2`, true, filename)
	if err != nil {
		return fmt.Errorf("failed to activate document: %w", err)
	}
	return expectOne(res)
}

// List returns tracked documents ordered by opening time.
func (r *WorkspaceRepository) List(ctx context.Context) ([]domain.WorkspaceDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT filename, display_name, active, opened
		FROM open_documents
		ORDER BY opened ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open documents: %w", err)
	}
	defer rows.Close()

	out := []domain.WorkspaceDocument{}
	for rows.Next() {
		var d domain.WorkspaceDocument
		if err := rows.Scan(&d.Filename, &d.DisplayName, &d.Active, &d.OpenedAt); err != nil {
			return nil, fmt.Errorf("failed to scan open document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open documents: %w", err)
	}
	return out, nil
}

// Delete removes filename and reports whether a row existed.
func (r *WorkspaceRepository) Delete(ctx context.Context, filename string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM open_documents WHERE filename = $1`, filename)
	if err != nil {
		return false, fmt.Errorf("failed to delete open document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// MostRecent returns the filename of the latest opened document, or "" when
// the workspace is empty.
func (r *WorkspaceRepository) MostRecent(ctx context.Context) (string, error) {
	var filename string
	err := r.db.QueryRowContext(ctx, `
		SELECT filename FROM open_documents ORDER BY opened DESC, id DESC LIMIT 1`,
	).Scan(&filename)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest document: %w", err)
	}
	return filename, nil
}
