package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type HistoryService struct {
	repo *repository.HistoryRepository
}

func NewHistoryService(repo *repository.HistoryRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

// WithTx returns a service that records inside tx.
func (s *HistoryService) WithTx(tx *sql.Tx) *HistoryService {
	return &HistoryService{repo: s.repo.WithTx(tx)}
}

func (s *HistoryService) Record(ctx context.Context, source, output string, changes []domain.RedactionChange, at time.Time) error {
	return s.repo.Insert(ctx, &domain.HistoryEntry{
		SourceFilename: source,
		OutputFilename: output,
		Changes:        changes,
		Timestamp:      at,
	})
}

// List returns the newest entries first. limit <= 0 means the default and is
// capped at MaxHistoryLimit.
func (s *HistoryService) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.repo.List(ctx, limit)
}
