package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/gin-gonic/gin"
)

type templateReq struct {
	Name     string                   `json:"name"`
	Company  string                   `json:"company"`
	DocType  string                   `json:"doc_type"`
	Boxes    []domain.RedactionChange `json:"boxes"`
	Filename string                   `json:"filename"`
}

// boxes returns the explicit boxes, or the staged changes of Filename when
// no boxes were sent.
func (h *Handler) boxes(ctx context.Context, req templateReq) ([]domain.RedactionChange, error) {
	if len(req.Boxes) > 0 || strings.TrimSpace(req.Filename) == "" {
		return req.Boxes, nil
	}
	name, err := safeName(req.Filename)
	if err != nil {
		return nil, err
	}
	return h.staging.Load(ctx, name)
}

func (h *Handler) listTemplates(c *gin.Context) {
	items, err := h.templates.List(c.Request.Context(), c.Query("company"), c.Query("doc_type"))
	if err != nil {
		writeError(c, "template_list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "templates": items})
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req templateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	ctx := c.Request.Context()

	boxes, err := h.boxes(ctx, req)
	if err != nil {
		writeError(c, "template_create", err)
		return
	}
	id, err := h.templates.Create(ctx, req.Name, req.Company, req.DocType, boxes)
	if err != nil {
		writeError(c, "template_create", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": id})
}

func (h *Handler) getTemplate(c *gin.Context) {
	t, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "template_get", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "template": t, "boxes": t.Boxes})
}

func (h *Handler) updateTemplate(c *gin.Context) {
	var req templateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	ctx := c.Request.Context()

	boxes, err := h.boxes(ctx, req)
	if err != nil {
		writeError(c, "template_update", err)
		return
	}
	version, err := h.templates.Update(ctx, c.Param("id"), boxes)
	if err != nil {
		writeError(c, "template_update", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": version})
}

func (h *Handler) listVersions(c *gin.Context) {
	versions, err := h.templates.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "template_versions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "versions": versions})
}

type nameReq struct {
	Name string `json:"name"`
}

func (h *Handler) duplicateTemplate(c *gin.Context) {
	var req nameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	id, err := h.templates.Duplicate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, "template_duplicate", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": id})
}

func (h *Handler) renameTemplate(c *gin.Context) {
	var req nameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := h.templates.Rename(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		writeError(c, "template_rename", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) exportTemplate(c *gin.Context) {
	exp, err := h.templates.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "template_export", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="template_%s.json"`, exp.ID))
	c.JSON(http.StatusOK, exp)
}

// importTemplate accepts the exported JSON as the raw body or as a multipart
// "file" field.
func (h *Handler) importTemplate(c *gin.Context) {
	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "missing file")
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "unreadable upload")
			return
		}
		defer f.Close()
		src = f
	}

	blob, err := io.ReadAll(io.LimitReader(src, maxImportBytes+1))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	if len(blob) > maxImportBytes {
		badRequest(c, "template too large")
		return
	}

	id, err := h.templates.Import(c.Request.Context(), blob)
	if err != nil {
		writeError(c, "template_import", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": id})
}

type applyTemplateReq struct {
	Filename   string           `json:"filename"`
	Mode       domain.ApplyMode `json:"mode"`
	TargetPage *int             `json:"target_page"`
}

func (h *Handler) applyTemplate(c *gin.Context) {
	var req applyTemplateReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		badRequest(c, "invalid body")
		return
	}
	name, ok := filenameParam(c, req.Filename)
	if !ok {
		return
	}

	n, err := h.templates.Apply(c.Request.Context(), name, c.Param("id"), req.Mode, req.TargetPage)
	if err != nil {
		writeError(c, "template_apply", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "staged": n})
}
