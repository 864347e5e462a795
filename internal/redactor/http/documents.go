package http

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *Handler) upload(c *gin.Context) {
	fh, err := c.FormFile("pdf")
	if err != nil {
		badRequest(c, "missing pdf file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	res, err := h.docs.Upload(c.Request.Context(), c.Query("module"), fh.Filename, f)
	if err != nil {
		writeError(c, "upload", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":           true,
		"filename":     res.Filename,
		"pages":        res.Pages,
		"text_preview": res.TextPreview,
	})
}

func (h *Handler) page(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	page, ok := pageParam(c)
	if !ok {
		return
	}
	dpi, ok := queryFloat(c, "dpi", 0)
	if !ok {
		return
	}

	png, err := h.docs.RenderPage(c.Request.Context(), name, page, dpi)
	if err != nil {
		writeError(c, "render_page", err)
		return
	}
	c.Header("Content-Type", "image/png")
	c.File(png)
}

func (h *Handler) thumbnail(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	page, ok := pageParam(c)
	if !ok {
		return
	}

	png, err := h.docs.Thumbnail(c.Request.Context(), name, page)
	if err != nil {
		writeError(c, "thumbnail", err)
		return
	}
	c.Header("Content-Type", "image/png")
	c.File(png)
}

func (h *Handler) suggestions(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	minConf, ok := queryFloat(c, "min_conf", defaultMinConfidence)
	if !ok {
		return
	}

	out, err := h.docs.Suggestions(c.Request.Context(), name, queryBool(c, "ocr", h.ocrDefault), minConf)
	if err != nil {
		writeError(c, "suggestions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "suggestions": out})
}

func (h *Handler) autodetect(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	src, err := h.docs.SourcePath(name)
	if err != nil {
		writeError(c, "autodetect", err)
		return
	}

	res := h.templates.AutoDetect(c.Request.Context(), src)
	c.JSON(http.StatusOK, gin.H{"ok": true, "company": res.Company, "doc_type": res.DocType})
}

type filenameReq struct {
	Filename string `json:"filename"`
}

func (h *Handler) apply(c *gin.Context) {
	var req filenameReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Filename) == "" {
		badRequest(c, "invalid body")
		return
	}
	name, ok := filenameParam(c, req.Filename)
	if !ok {
		return
	}

	output, err := h.commit.Commit(c.Request.Context(), name)
	if err != nil {
		writeError(c, "apply", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"output":       output,
		"download_url": path.Join(h.basePath, "download", output),
	})
}

func (h *Handler) download(c *gin.Context) {
	name, ok := filenameParam(c, c.Param("filename"))
	if !ok {
		return
	}
	p, err := h.docs.OutputPath(name)
	if err != nil {
		writeError(c, "download", err)
		return
	}
	c.FileAttachment(p, name)
}

func (h *Handler) listHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	items, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "history": items})
}
