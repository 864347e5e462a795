package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
)

// WorkspaceService tracks open documents and the single active one.
type WorkspaceService struct {
	db       *sql.DB
	repo     *repository.WorkspaceRepository
	staging  *repository.StagingRepository
	docLocks *KeyedMutex

	// active guards the at-most-one-active invariant across documents
	active sync.Mutex
}

func NewWorkspaceService(db *sql.DB, repo *repository.WorkspaceRepository, staging *repository.StagingRepository, docLocks *KeyedMutex) *WorkspaceService {
	return &WorkspaceService{db: db, repo: repo, staging: staging, docLocks: docLocks}
}

// Open tracks filename (if needed) and makes it the active document.
func (s *WorkspaceService) Open(ctx context.Context, filename, displayName string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = filename
	}

	s.active.Lock()
	defer s.active.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.Exists(ctx, filename)
		if err != nil {
			return err
		}
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		if exists {
			return repo.Activate(ctx, filename)
		}
		return repo.Insert(ctx, filename, displayName, true, time.Now().UTC())
	})
	if err != nil {
		NewLogger(ctx).LogError("workspace_open", err)
		return err
	}

	NewLogger(ctx).LogInfof("workspace_open", "filename=%s", filename)
	return nil
}

func (s *WorkspaceService) List(ctx context.Context) ([]domain.WorkspaceDocument, error) {
	return s.repo.List(ctx)
}

// SetActive activates a tracked document. Untracked names change nothing.
func (s *WorkspaceService) SetActive(ctx context.Context, filename string) error {
	s.active.Lock()
	defer s.active.Unlock()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.Exists(ctx, filename)
		if err != nil {
			return err
		}
		if !exists {
			NewLogger(ctx).LogInfof("workspace_set_active", "filename=%s not tracked", filename)
			return nil
		}
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		return repo.Activate(ctx, filename)
	})
}

// Close untracks filename and discards its staged changes. When it was the
// active document, the most recently opened remaining one takes over.
func (s *WorkspaceService) Close(ctx context.Context, filename string) error {
	unlock := s.docLocks.Lock(filename)
	defer unlock()

	s.active.Lock()
	defer s.active.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		wasActive, err := repo.IsActive(ctx, filename)
		if err != nil {
			return err
		}
		if _, err := repo.Delete(ctx, filename); err != nil {
			return err
		}
		if err := s.staging.WithTx(tx).Clear(ctx, filename); err != nil {
			return err
		}
		if !wasActive {
			return nil
		}

		next, err := repo.MostRecent(ctx)
		if err != nil || next == "" {
			return err
		}
		return repo.Activate(ctx, next)
	})
	if err != nil {
		NewLogger(ctx).LogError("workspace_close", err)
		return err
	}

	NewLogger(ctx).LogInfof("workspace_close", "filename=%s", filename)
	return nil
}
