package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
)

// DocumentRedactor writes a copy of src with the given changes destroyed.
type DocumentRedactor interface {
	RedactFile(ctx context.Context, src string, w io.Writer, changes []domain.RedactionChange) error
}

type CommitService struct {
	db        *sql.DB
	staging   *repository.StagingRepository
	history   *HistoryService
	redactor  DocumentRedactor
	docLocks  *KeyedMutex
	uploadDir string
	outputDir string
}

func NewCommitService(
	db *sql.DB,
	staging *repository.StagingRepository,
	history *HistoryService,
	redactor DocumentRedactor,
	docLocks *KeyedMutex,
	uploadDir, outputDir string,
) *CommitService {
	return &CommitService{
		db:        db,
		staging:   staging,
		history:   history,
		redactor:  redactor,
		docLocks:  docLocks,
		uploadDir: uploadDir,
		outputDir: outputDir,
	}
}

// OutputName returns "<base>_Redacted<ext>" for filename.
func OutputName(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_Redacted" + ext
}

// Commit applies the staged changes of filename, writes the redacted copy and
// on success records history and empties the staging list. The document lock
// is held from reading staging until it is cleared.
func (s *CommitService) Commit(ctx context.Context, filename string) (string, error) {
	logger := NewLogger(ctx)

	unlock := s.docLocks.Lock(filename)
	defer unlock()

	changes, err := s.staging.List(ctx, filename)
	if err != nil {
		logger.LogError("commit", err)
		return "", err
	}
	if len(changes) == 0 {
		return "", fmt.Errorf("%w: nothing staged for %s", domain.ErrInvalidInput, filename)
	}

	source := filepath.Join(s.uploadDir, filename)
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, filename)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}

	output := OutputName(filename)
	if err := s.write(ctx, source, filepath.Join(s.outputDir, output), changes); err != nil {
		logger.LogError("commit", err)
		return "", err
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.history.WithTx(tx).Record(ctx, filename, output, changes, time.Now().UTC()); err != nil {
			return err
		}
		return s.staging.WithTx(tx).Clear(ctx, filename)
	})
	if err != nil {
		logger.LogError("commit", err)
		return "", err
	}

	logger.LogInfof("commit", "filename=%s output=%s changes=%d", filename, output, len(changes))
	return output, nil
}

// write renders into a temp file beside dst and renames it into place, so dst
// is either the previous file or the complete new one.
func (s *CommitService) write(ctx context.Context, source, dst string, changes []domain.RedactionChange) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".redact-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := s.redactor.RedactFile(ctx, source, tmp, changes); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
	}
	committed = true
	return nil
}
