package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/google/uuid"
)

const (
	ThumbnailDPI     = 60
	DefaultPageDPI   = 150
	MinPageDPI       = 30
	MaxPageDPI       = 300
	textPreviewChars = 1000
)

var (
	pdfMagic      = []byte("%PDF-")
	moduleCleaner = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// PageRenderer is the rasterization and text backend for stored documents.
// Missing files and out-of-range pages are reported as domain.ErrNotFound.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int, dpi float64) (string, error)
	PageCount(ctx context.Context, path string) (int, error)
	PageText(ctx context.Context, path string, page int) (string, error)
}

// SuggestionExtractor proposes candidate redactions for a document.
type SuggestionExtractor interface {
	Extract(ctx context.Context, path string, useOCR bool, minConfidence float64) ([]domain.Suggestion, error)
}

// DocumentService covers stored documents: upload, page images, suggestions
// and lookups of redacted outputs.
type DocumentService struct {
	renderer    PageRenderer
	suggestions SuggestionExtractor
	workspace   *WorkspaceService
	uploadDir   string
	outputDir   string
	maxUpload   int64
}

func NewDocumentService(renderer PageRenderer, suggestions SuggestionExtractor, workspace *WorkspaceService, uploadDir, outputDir string, maxUpload int64) *DocumentService {
	return &DocumentService{
		renderer:    renderer,
		suggestions: suggestions,
		workspace:   workspace,
		uploadDir:   uploadDir,
		outputDir:   outputDir,
		maxUpload:   maxUpload,
	}
}

// SafeName reduces a client supplied filename to its base name and rejects
// anything that tries to leave the storage directory.
func SafeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: invalid filename", domain.ErrInvalidInput)
	}
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("%w: invalid filename", domain.ErrInvalidInput)
	}
	return base, nil
}

// SourcePath resolves an uploaded document, NotFound when it is absent.
func (s *DocumentService) SourcePath(filename string) (string, error) {
	name, err := SafeName(filename)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, name)
	}
	return path, nil
}

// OutputPath resolves a redacted output, NotFound when it is absent.
func (s *DocumentService) OutputPath(filename string) (string, error) {
	name, err := SafeName(filename)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.outputDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: output %s", domain.ErrNotFound, name)
	}
	return path, nil
}

// Upload stores a PDF as "<module>_<id8>.pdf", opens it in the workspace and
// returns its page count with a short text preview.
func (s *DocumentService) Upload(ctx context.Context, module, originalName string, r io.Reader) (*domain.UploadResult, error) {
	logger := NewLogger(ctx)

	module = moduleCleaner.ReplaceAllString(strings.TrimSpace(module), "")
	if module == "" {
		module = "default"
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, fmt.Errorf("%w: file is not a PDF", domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.pdf", module, strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	path := filepath.Join(s.uploadDir, name)

	if err := s.store(br, path); err != nil {
		logger.LogError("upload", err)
		return nil, err
	}

	pages, err := s.renderer.PageCount(ctx, path)
	if err != nil {
		os.Remove(path)
		logger.LogWarnf("upload", "unreadable pdf original=%q error=%v", originalName, err)
		return nil, fmt.Errorf("%w: PDF could not be read", domain.ErrInvalidInput)
	}

	display := strings.TrimSpace(filepath.Base(originalName))
	if display == "" || display == "." {
		display = name
	}
	if err := s.workspace.Open(ctx, name, display); err != nil {
		return nil, err
	}

	logger.LogInfof("upload", "filename=%s pages=%d", name, pages)
	return &domain.UploadResult{
		Filename:    name,
		Pages:       pages,
		TextPreview: s.preview(ctx, path, pages),
	}, nil
}

func (s *DocumentService) store(r io.Reader, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxUpload > 0 {
		src = io.LimitReader(r, s.maxUpload+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write upload: %w", err)
	}
	if s.maxUpload > 0 && n > s.maxUpload {
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.maxUpload)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *DocumentService) preview(ctx context.Context, path string, pages int) string {
	var sb strings.Builder
	for p := 0; p < pages && utf8.RuneCountInString(sb.String()) < textPreviewChars; p++ {
		text, err := s.renderer.PageText(ctx, path, p)
		if err != nil {
			break
		}
		sb.WriteString(text)
	}
	out := sb.String()
	if utf8.RuneCountInString(out) > textPreviewChars {
		out = string([]rune(out)[:textPreviewChars])
	}
	return out
}

// ClampDPI maps a requested page DPI into the supported range; zero means default.
func ClampDPI(dpi float64) float64 {
	switch {
	case dpi <= 0:
		return DefaultPageDPI
	case dpi < MinPageDPI:
		return MinPageDPI
	case dpi > MaxPageDPI:
		return MaxPageDPI
	}
	return dpi
}

// RenderPage returns the cached PNG path for page of filename.
func (s *DocumentService) RenderPage(ctx context.Context, filename string, page int, dpi float64) (string, error) {
	path, err := s.SourcePath(filename)
	if err != nil {
		return "", err
	}
	out, err := s.renderer.RenderPage(ctx, path, page, ClampDPI(dpi))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		NewLogger(ctx).LogError("render_page", err)
	}
	return out, err
}

func (s *DocumentService) Thumbnail(ctx context.Context, filename string, page int) (string, error) {
	path, err := s.SourcePath(filename)
	if err != nil {
		return "", err
	}
	return s.renderer.RenderPage(ctx, path, page, ThumbnailDPI)
}

// Suggestions never fails on model problems; those degrade to an empty list.
func (s *DocumentService) Suggestions(ctx context.Context, filename string, useOCR bool, minConfidence float64) ([]domain.Suggestion, error) {
	path, err := s.SourcePath(filename)
	if err != nil {
		return nil, err
	}
	if s.suggestions == nil {
		return []domain.Suggestion{}, nil
	}
	out, err := s.suggestions.Extract(ctx, path, useOCR, minConfidence)
	if err != nil {
		NewLogger(ctx).LogWarnf("suggestions", "filename=%s error=%v", filename, err)
		return []domain.Suggestion{}, nil
	}
	if out == nil {
		out = []domain.Suggestion{}
	}
	return out, nil
}
