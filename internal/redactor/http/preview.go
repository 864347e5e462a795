package http

import (
	"net/http"
	"strings"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/gin-gonic/gin"
)

type previewSaveReq struct {
	Filename string                   `json:"filename"`
	Changes  []domain.RedactionChange `json:"changes"`
}

func (h *Handler) previewSave(c *gin.Context) {
	var req previewSaveReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		badRequest(c, "invalid body")
		return
	}
	name, ok := filenameParam(c, req.Filename)
	if !ok {
		return
	}

	if err := h.staging.Stage(c.Request.Context(), name, req.Changes); err != nil {
		writeError(c, "preview_save", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "staged": len(req.Changes)})
}

func (h *Handler) previewLoad(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	changes, err := h.staging.Load(c.Request.Context(), name)
	if err != nil {
		writeError(c, "preview_load", err)
		return
	}
	if changes == nil {
		changes = []domain.RedactionChange{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "preview": changes})
}

func (h *Handler) previewUndo(c *gin.Context) {
	h.withFilename(c, "preview_undo", h.staging.UndoLast)
}

func (h *Handler) previewClear(c *gin.Context) {
	h.withFilename(c, "preview_clear", h.staging.Clear)
}
