package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
)

// StagingRepository persists pending redaction changes in redaction_preview.
// Row ids give insertion order, which is also apply and undo order.
type StagingRepository struct {
	db DBTX
}

func NewStagingRepository(db DBTX) *StagingRepository {
	return &StagingRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *StagingRepository) WithTx(tx *sql.Tx) *StagingRepository {
	return &StagingRepository{db: tx}
}

// Append inserts all changes for filename in one transaction.
func (r *StagingRepository) Append(ctx context.Context, filename string, changes []domain.RedactionChange) error {
	if len(changes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return RunInTx(ctx, r.db, func(q DBTX) error {
		for _, c := range changes {
			_, err := q.ExecContext(ctx, `
				INSERT INTO redaction_preview (filename, page, x, y, width, height, type, text, created)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				filename, c.Page, c.X, c.Y, c.Width, c.Height, string(c.Kind), c.Text, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert staged change: %w", err)
			}
		}
		return nil
	})
}

// List returns the staged changes for filename in insertion order.
func (r *StagingRepository) List(ctx context.Context, filename string) ([]domain.RedactionChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT page, x, y, width, height, type, text
		FROM redaction_preview
		WHERE filename = $1
		ORDER BY id ASC`, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged changes: %w", err)
	}
	defer rows.Close()

	changes := []domain.RedactionChange{}
	for rows.Next() {
		var c domain.RedactionChange
		var kind string
		if err := rows.Scan(&c.Page, &c.X, &c.Y, &c.Width, &c.Height, &kind, &c.Text); err != nil {
			return nil, fmt.Errorf("failed to scan staged change: %w", err)
		}
		c.Kind = domain.ChangeKind(kind)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged changes: %w", err)
	}
	return changes, nil
}

// DeleteLast removes the most recently staged change. It reports false when
// nothing was staged.
func (r *StagingRepository) DeleteLast(ctx context.Context, filename string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM redaction_preview
		WHERE id = (SELECT MAX(id) FROM redaction_preview WHERE filename = $1)`, filename)
	if err != nil {
		return false, fmt.Errorf("failed to undo staged change: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Clear removes every staged change for filename.
func (r *StagingRepository) Clear(ctx context.Context, filename string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM redaction_preview WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("failed to clear staged changes: %w", err)
	}
	return nil
}
