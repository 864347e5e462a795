package http

import "github.com/gin-gonic/gin"

// Register mounts the redactor API. heavy middleware (rate limiting) guards the
// routes that render, scan or rewrite whole documents.
func (h *Handler) Register(rg *gin.RouterGroup, heavy ...gin.HandlerFunc) {
	h.basePath = rg.BasePath()

	guarded := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, heavy...), fn)
	}

	rg.POST("/upload", guarded(h.upload)...)
	rg.GET("/documents/:filename/pages/:page", h.page)
	rg.GET("/documents/:filename/thumbnails/:page", h.thumbnail)
	rg.GET("/documents/:filename/suggestions", guarded(h.suggestions)...)
	rg.GET("/documents/:filename/autodetect", h.autodetect)

	rg.POST("/preview/save", h.previewSave)
	rg.GET("/preview/load/:filename", h.previewLoad)
	rg.POST("/preview/undo", h.previewUndo)
	rg.POST("/preview/clear", h.previewClear)

	rg.POST("/apply", guarded(h.apply)...)
	rg.GET("/download/:filename", h.download)
	rg.GET("/history", h.listHistory)

	rg.GET("/templates", h.listTemplates)
	rg.POST("/templates", h.createTemplate)
	rg.POST("/templates/import", h.importTemplate)
	rg.GET("/templates/:id", h.getTemplate)
	rg.PUT("/templates/:id", h.updateTemplate)
	rg.GET("/templates/:id/versions", h.listVersions)
	rg.POST("/templates/:id/duplicate", h.duplicateTemplate)
	rg.POST("/templates/:id/rename", h.renameTemplate)
	rg.GET("/templates/:id/export", h.exportTemplate)
	rg.POST("/templates/:id/apply", h.applyTemplate)

	rg.POST("/workspace/open", h.workspaceOpen)
	rg.GET("/workspace/list", h.workspaceList)
	rg.POST("/workspace/set_active", h.workspaceSetActive)
	rg.POST("/workspace/close", h.workspaceClose)
}
