package service

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
	"github.com/docdesk/redactor-backend/internal/storage/sqlstore"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed template_schema.json
var templateSchemaJSON []byte

const (
	templateSchemaURL = "redactor://template.schema.json"
	maxVersionRetries = 5
)

// DocTypeKeywords is checked in order; the first keyword found wins.
var DocTypeKeywords = []string{
	"bill of lading", "invoice", "credit note", "debit note", "statement",
	"receipt", "purchase order", "packing list", "manifest", "quotation",
	"delivery note",
}

// PageTextReader extracts plain text from one page of a document.
type PageTextReader interface {
	PageText(ctx context.Context, path string, page int) (string, error)
}

type TemplateService struct {
	db        *sql.DB
	repo      *repository.TemplateRepository
	staging   *StagingService
	locks     *KeyedMutex
	schema    *jsonschema.Schema
	text      PageTextReader
	companies []knownCompany
}

// knownCompany keeps the configured spelling for replies and a lowered copy
// for matching.
type knownCompany struct {
	name  string
	match string
}

func NewTemplateService(db *sql.DB, repo *repository.TemplateRepository, staging *StagingService, text PageTextReader, companies []string) (*TemplateService, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(templateSchemaURL, bytes.NewReader(templateSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load template schema: %w", err)
	}
	schema, err := compiler.Compile(templateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}

	known := make([]knownCompany, 0, len(companies))
	for _, c := range companies {
		if c = strings.TrimSpace(c); c != "" {
			known = append(known, knownCompany{name: c, match: strings.ToLower(c)})
		}
	}

	return &TemplateService{
		db:        db,
		repo:      repo,
		staging:   staging,
		locks:     NewKeyedMutex(),
		schema:    schema,
		text:      text,
		companies: known,
	}, nil
}

func (s *TemplateService) Create(ctx context.Context, name, company, docType string, boxes []domain.RedactionChange) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: template name is required", domain.ErrInvalidInput)
	}
	if len(boxes) == 0 {
		return "", fmt.Errorf("%w: template needs at least one box", domain.ErrInvalidInput)
	}
	if err := domain.ValidateChanges(boxes); err != nil {
		return "", err
	}

	t := &domain.Template{
		ID:        uuid.New().String(),
		Name:      name,
		Company:   strings.TrimSpace(company),
		DocType:   strings.TrimSpace(docType),
		Boxes:     boxes,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		NewLogger(ctx).LogError("template_create", err)
		return "", err
	}

	NewLogger(ctx).LogInfof("template_create", "id=%s name=%q boxes=%d", t.ID, t.Name, len(boxes))
	return t.ID, nil
}

func (s *TemplateService) List(ctx context.Context, company, docType string) ([]domain.TemplateSummary, error) {
	return s.repo.List(ctx, strings.TrimSpace(company), strings.TrimSpace(docType))
}

func (s *TemplateService) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *TemplateService) LoadBoxes(ctx context.Context, id string) ([]domain.RedactionChange, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Boxes, nil
}

// Update snapshots the live content as the next version and then replaces the
// boxes. Concurrent updates of one template are serialized by the template lock;
// the UNIQUE(template_id, version) constraint catches writers from other
// processes, in which case the whole transaction is retried.
func (s *TemplateService) Update(ctx context.Context, id string, boxes []domain.RedactionChange) (int, error) {
	if len(boxes) == 0 {
		return 0, fmt.Errorf("%w: template needs at least one box", domain.ErrInvalidInput)
	}
	if err := domain.ValidateChanges(boxes); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var version int
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		version, err = s.updateOnce(ctx, id, boxes)
		if err == nil || !sqlstore.IsUniqueViolation(err) {
			break
		}
		NewLogger(ctx).LogWarnf("template_update", "id=%s version conflict, retrying attempt=%d", id, attempt+1)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			NewLogger(ctx).LogError("template_update", err)
		}
		return 0, err
	}

	NewLogger(ctx).LogInfof("template_update", "id=%s version=%d", id, version)
	return version, nil
}

func (s *TemplateService) updateOnce(ctx context.Context, id string, boxes []domain.RedactionChange) (int, error) {
	var next int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}

		maxVersion, err := repo.MaxVersion(ctx, id)
		if err != nil {
			return err
		}
		next = maxVersion + 1

		if err := repo.InsertVersion(ctx, &domain.TemplateVersion{
			TemplateID: id,
			Version:    next,
			Name:       current.Name,
			Company:    current.Company,
			DocType:    current.DocType,
			Boxes:      current.Boxes,
			CreatedAt:  current.CreatedAt,
		}); err != nil {
			return err
		}

		return repo.UpdateContent(ctx, id, boxes, time.Now().UTC())
	})
	return next, err
}

func (s *TemplateService) ListVersions(ctx context.Context, id string) ([]domain.VersionInfo, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, id)
}

// Duplicate copies a template under a new id with a fresh single-version history.
func (s *TemplateService) Duplicate(ctx context.Context, id, newName string) (string, error) {
	var newID string
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		src, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(newName)
		if name == "" {
			name = src.Name + " (copy)"
		}

		dup := &domain.Template{
			ID:        uuid.New().String(),
			Name:      name,
			Company:   src.Company,
			DocType:   src.DocType,
			Boxes:     src.Boxes,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.insertWithFirstVersion(ctx, repo, dup); err != nil {
			return err
		}
		newID = dup.ID
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			NewLogger(ctx).LogError("template_duplicate", err)
		}
		return "", err
	}

	NewLogger(ctx).LogInfof("template_duplicate", "source=%s id=%s", id, newID)
	return newID, nil
}

func (s *TemplateService) Rename(ctx context.Context, id, newName string) error {
	name := strings.TrimSpace(newName)
	if name == "" {
		return fmt.Errorf("%w: template name is required", domain.ErrInvalidInput)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	return s.repo.Rename(ctx, id, name)
}

func (s *TemplateService) Export(ctx context.Context, id string) (*domain.TemplateExport, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	createdAt := t.CreatedAt
	return &domain.TemplateExport{
		ID:        t.ID,
		Name:      t.Name,
		Company:   t.Company,
		DocType:   t.DocType,
		Boxes:     t.Boxes,
		CreatedAt: &createdAt,
	}, nil
}

// Import validates an exported template and stores it under a fresh id with a
// version-1 history row.
func (s *TemplateService) Import(ctx context.Context, blob []byte) (string, error) {
	var doc interface{}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return "", fmt.Errorf("%w: template is not valid JSON", domain.ErrInvalidInput)
	}
	if err := s.schema.Validate(doc); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var in domain.TemplateExport
	if err := json.Unmarshal(blob, &in); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := domain.ValidateChanges(in.Boxes); err != nil {
		return "", err
	}

	t := &domain.Template{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Company:   strings.TrimSpace(in.Company),
		DocType:   strings.TrimSpace(in.DocType),
		Boxes:     in.Boxes,
		CreatedAt: time.Now().UTC(),
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.insertWithFirstVersion(ctx, s.repo.WithTx(tx), t)
	})
	if err != nil {
		NewLogger(ctx).LogError("template_import", err)
		return "", err
	}

	NewLogger(ctx).LogInfof("template_import", "id=%s name=%q", t.ID, t.Name)
	return t.ID, nil
}

func (s *TemplateService) insertWithFirstVersion(ctx context.Context, repo *repository.TemplateRepository, t *domain.Template) error {
	if err := repo.Insert(ctx, t); err != nil {
		return err
	}
	return repo.InsertVersion(ctx, &domain.TemplateVersion{
		TemplateID: t.ID,
		Version:    1,
		Name:       t.Name,
		Company:    t.Company,
		DocType:    t.DocType,
		Boxes:      t.Boxes,
		CreatedAt:  t.CreatedAt,
	})
}

// Apply stages the template boxes on filename. In page mode every box is moved
// to targetPage.
func (s *TemplateService) Apply(ctx context.Context, filename, id string, mode domain.ApplyMode, targetPage *int) (int, error) {
	switch mode {
	case domain.ApplyAll, "":
		mode = domain.ApplyAll
	case domain.ApplyPage:
		if targetPage == nil || *targetPage < 0 {
			return 0, fmt.Errorf("%w: target_page is required for page mode", domain.ErrInvalidInput)
		}
	default:
		return 0, fmt.Errorf("%w: unknown apply mode %q", domain.ErrInvalidInput, mode)
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	boxes := make([]domain.RedactionChange, len(t.Boxes))
	copy(boxes, t.Boxes)
	if mode == domain.ApplyPage {
		for i := range boxes {
			boxes[i].Page = *targetPage
		}
	}

	if err := s.staging.Stage(ctx, filename, boxes); err != nil {
		return 0, err
	}
	NewLogger(ctx).LogInfof("template_apply", "id=%s filename=%s mode=%s boxes=%d", id, filename, mode, len(boxes))
	return len(boxes), nil
}

// AutoDetect guesses company and document type from the first page text.
// Any extraction failure yields an empty result.
func (s *TemplateService) AutoDetect(ctx context.Context, path string) domain.DetectResult {
	var res domain.DetectResult
	if s.text == nil {
		return res
	}

	text, err := s.text.PageText(ctx, path, 0)
	if err != nil {
		NewLogger(ctx).LogWarnf("template_autodetect", "path=%s error=%v", path, err)
		return res
	}
	text = strings.ToLower(text)

	for _, c := range s.companies {
		if strings.Contains(text, c.match) {
			res.Company = c.name
			break
		}
	}
	for _, kw := range DocTypeKeywords {
		if strings.Contains(text, kw) {
			res.DocType = kw
			break
		}
	}
	return res
}
