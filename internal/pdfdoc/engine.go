package pdfdoc

import (
	"context"
	"io"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
)

// Engine applies redaction changes to PDF files.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// RedactFile reads src, destroys the content covered by changes and writes
// the result to w. src is never modified.
func (e *Engine) RedactFile(ctx context.Context, src string, w io.Writer, changes []domain.RedactionChange) error {
	doc, err := Open(src)
	if err != nil {
		return err
	}
	if err := doc.Redact(ctx, changes); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return doc.Write(w)
}
