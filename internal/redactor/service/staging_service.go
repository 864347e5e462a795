package service

import (
	"context"
	"fmt"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
)

// StagingService owns the per-document pending change lists.
type StagingService struct {
	repo  *repository.StagingRepository
	locks *KeyedMutex
}

func NewStagingService(repo *repository.StagingRepository, locks *KeyedMutex) *StagingService {
	return &StagingService{repo: repo, locks: locks}
}

// Stage validates and appends changes. Nothing is staged when any change is invalid.
func (s *StagingService) Stage(ctx context.Context, filename string, changes []domain.RedactionChange) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidateChanges(changes); err != nil {
		return err
	}

	unlock := s.locks.Lock(filename)
	defer unlock()

	if err := s.repo.Append(ctx, filename, changes); err != nil {
		NewLogger(ctx).LogError("stage", err)
		return err
	}
	NewLogger(ctx).LogInfof("stage", "filename=%s changes=%d", filename, len(changes))
	return nil
}

func (s *StagingService) Load(ctx context.Context, filename string) ([]domain.RedactionChange, error) {
	unlock := s.locks.Lock(filename)
	defer unlock()
	return s.repo.List(ctx, filename)
}

// UndoLast drops the newest staged change; an empty list is left as is.
func (s *StagingService) UndoLast(ctx context.Context, filename string) error {
	unlock := s.locks.Lock(filename)
	defer unlock()

	removed, err := s.repo.DeleteLast(ctx, filename)
	if err != nil {
		NewLogger(ctx).LogError("undo", err)
		return err
	}
	if !removed {
		NewLogger(ctx).LogInfof("undo", "filename=%s nothing staged", filename)
	}
	return nil
}

func (s *StagingService) Clear(ctx context.Context, filename string) error {
	unlock := s.locks.Lock(filename)
	defer unlock()
	return s.repo.Clear(ctx, filename)
}
