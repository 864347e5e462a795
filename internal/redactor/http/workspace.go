package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// withFilename decodes {"filename": ...} and runs fn on the sanitized name.
func (h *Handler) withFilename(c *gin.Context, operation string, fn func(context.Context, string) error) {
	var req filenameReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		badRequest(c, "invalid body")
		return
	}
	name, ok := filenameParam(c, req.Filename)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), name); err != nil {
		writeError(c, operation, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type workspaceOpenReq struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) workspaceOpen(c *gin.Context) {
	var req workspaceOpenReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		badRequest(c, "invalid body")
		return
	}
	name, ok := filenameParam(c, req.Filename)
	if !ok {
		return
	}
	if err := h.workspace.Open(c.Request.Context(), name, strings.TrimSpace(req.DisplayName)); err != nil {
		writeError(c, "workspace_open", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) workspaceList(c *gin.Context) {
	docs, err := h.workspace.List(c.Request.Context())
	if err != nil {
		writeError(c, "workspace_list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documents": docs})
}

func (h *Handler) workspaceSetActive(c *gin.Context) {
	h.withFilename(c, "workspace_set_active", h.workspace.SetActive)
}

func (h *Handler) workspaceClose(c *gin.Context) {
	h.withFilename(c, "workspace_close", h.workspace.Close)
}
