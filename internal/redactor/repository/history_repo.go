package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
)

// HistoryRepository is the append-only commit log.
type HistoryRepository struct {
	db DBTX
}

func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) WithTx(tx *sql.Tx) *HistoryRepository {
	return &HistoryRepository{db: tx}
}

func (r *HistoryRepository) Insert(ctx context.Context, e *domain.HistoryEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal history changes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO redaction_history (source_filename, output_filename, changes, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.SourceFilename, e.OutputFilename, string(changes), e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_filename, output_filename, changes, created_at
		FROM redaction_history
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []domain.HistoryEntry{}
	for rows.Next() {
		var e domain.HistoryEntry
		var changes string
		if err := rows.Scan(&e.ID, &e.SourceFilename, &e.OutputFilename, &changes, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history changes: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}
