package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
)

// TemplateRepository stores live templates and their immutable versions.
type TemplateRepository struct {
	db DBTX
}

func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) WithTx(tx *sql.Tx) *TemplateRepository {
	return &TemplateRepository{db: tx}
}

// Insert writes the live template row.
func (r *TemplateRepository) Insert(ctx context.Context, t *domain.Template) error {
	boxes, err := json.Marshal(t.Boxes)
	if err != nil {
		return fmt.Errorf("failed to marshal template boxes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO redaction_templates (id, name, company, doc_type, boxes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Company, t.DocType, string(boxes), t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// Get loads a template with its boxes.
func (r *TemplateRepository) Get(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	var boxes string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, company, doc_type, boxes, created_at
		FROM redaction_templates
		WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Company, &t.DocType, &boxes, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := json.Unmarshal([]byte(boxes), &t.Boxes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template boxes: %w", err)
	}
	return &t, nil
}

// List returns templates ordered by name. A filter passes when it is empty,
// when the template field is empty, or when both match case-insensitively.
func (r *TemplateRepository) List(ctx context.Context, company, docType string) ([]domain.TemplateSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, company, doc_type, created_at
		FROM redaction_templates
		WHERE ($1 = '' OR company = '' OR LOWER(company) = LOWER($1))
		  AND ($2 = '' OR doc_type = '' OR LOWER(doc_type) = LOWER($2))
		ORDER BY name ASC, id ASC`, company, docType)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.TemplateSummary{}
	for rows.Next() {
		var s domain.TemplateSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Company, &s.DocType, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return out, nil
}

// UpdateContent overwrites boxes and refreshes created_at.
func (r *TemplateRepository) UpdateContent(ctx context.Context, id string, boxes []domain.RedactionChange, at time.Time) error {
	raw, err := json.Marshal(boxes)
	if err != nil {
		return fmt.Errorf("failed to marshal template boxes: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE redaction_templates SET boxes = $1, created_at = $2 WHERE id = $3`,
		string(raw), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return expectOne(res)
}

func (r *TemplateRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE redaction_templates SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename template: %w", err)
	}
	return expectOne(res)
}

// MaxVersion returns the highest recorded version, 0 when there is none.
func (r *TemplateRepository) MaxVersion(ctx context.Context, id string) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM redaction_template_versions WHERE template_id = $1`, id,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read template version: %w", err)
	}
	return v, nil
}

// InsertVersion records an immutable snapshot. A duplicate (template_id,
// version) surfaces as a unique violation.
func (r *TemplateRepository) InsertVersion(ctx context.Context, v *domain.TemplateVersion) error {
	boxes, err := json.Marshal(v.Boxes)
	if err != nil {
		return fmt.Errorf("failed to marshal version boxes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO redaction_template_versions (template_id, version, name, company, doc_type, boxes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.TemplateID, v.Version, v.Name, v.Company, v.DocType, string(boxes), v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert template version: %w", err)
	}
	return nil
}

// ListVersions returns version numbers newest first.
func (r *TemplateRepository) ListVersions(ctx context.Context, id string) ([]domain.VersionInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, created_at
		FROM redaction_template_versions
		WHERE template_id = $1
		ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list template versions: %w", err)
	}
	defer rows.Close()

	out := []domain.VersionInfo{}
	for rows.Next() {
		var v domain.VersionInfo
		if err := rows.Scan(&v.Version, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template versions: %w", err)
	}
	return out, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
