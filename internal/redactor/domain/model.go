package domain

import (
	"fmt"
	"time"
)

// ChangeKind selects how a RedactionChange locates the content it removes.
type ChangeKind string

const (
	KindArea ChangeKind = "area"
	KindText ChangeKind = "text"
)

// RedactionChange is one pending redaction. Area boxes are normalized to the
// displayed page with a top-left origin; text changes redact every exact
// occurrence of Text on Page.
type RedactionChange struct {
	Page   int        `json:"page"`
	Kind   ChangeKind `json:"type"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Text   string     `json:"text,omitempty"`
}

// Validate checks the fields that must hold before a change is staged.
func (c RedactionChange) Validate() error {
	if c.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0", ErrInvalidInput)
	}
	switch c.Kind {
	case KindArea:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("%w: area width and height must be positive", ErrInvalidInput)
		}
	case KindText:
	default:
		return fmt.Errorf("%w: unknown change type %q", ErrInvalidInput, c.Kind)
	}
	return nil
}

// ValidateChanges validates every change, reporting the first offender by index.
func ValidateChanges(changes []RedactionChange) error {
	for i, c := range changes {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

type Template struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Company   string            `json:"company"`
	DocType   string            `json:"doc_type"`
	Boxes     []RedactionChange `json:"boxes"`
	CreatedAt time.Time         `json:"created_at"`
}

type TemplateSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	DocType   string    `json:"doc_type"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateVersion is an immutable snapshot of a template's content.
type TemplateVersion struct {
	TemplateID string            `json:"template_id"`
	Version    int               `json:"version"`
	Name       string            `json:"name"`
	Company    string            `json:"company"`
	DocType    string            `json:"doc_type"`
	Boxes      []RedactionChange `json:"boxes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// VersionInfo is the listing view of a TemplateVersion.
type VersionInfo struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateExport is the portable form produced by export and accepted by import.
type TemplateExport struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	Company   string            `json:"company,omitempty"`
	DocType   string            `json:"doc_type,omitempty"`
	Boxes     []RedactionChange `json:"boxes"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
}

type ApplyMode string

const (
	ApplyAll  ApplyMode = "all"
	ApplyPage ApplyMode = "page"
)

type DetectResult struct {
	Company string `json:"company"`
	DocType string `json:"doc_type"`
}

type WorkspaceDocument struct {
	Filename    string    `json:"filename"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	OpenedAt    time.Time `json:"opened_at"`
}

type HistoryEntry struct {
	ID             int64             `json:"id"`
	SourceFilename string            `json:"source_filename"`
	OutputFilename string            `json:"output_filename"`
	Changes        []RedactionChange `json:"changes"`
	Timestamp      time.Time         `json:"timestamp"`
}

type SuggestionSource string

const (
	SourceDetector SuggestionSource = "detector"
	SourceNER      SuggestionSource = "ner"
	SourceOCR      SuggestionSource = "ocr"
)

// Suggestion is a candidate redaction proposed by the detector or the entity
// recognizer. Area suggestions carry BBox in rendered-pixel space and Box as
// the normalized change ready for staging.
type Suggestion struct {
	Label      string           `json:"label"`
	Text       string           `json:"text,omitempty"`
	Page       int              `json:"page"`
	Mode       ChangeKind       `json:"mode"`
	BBox       []float64        `json:"bbox,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Box        *RedactionChange `json:"box,omitempty"`
	Source     SuggestionSource `json:"source"`
}

// UploadResult describes a freshly stored document.
type UploadResult struct {
	Filename    string `json:"filename"`
	Pages       int    `json:"pages"`
	TextPreview string `json:"text_preview"`
}
