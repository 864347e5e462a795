package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultMinConfidence = 0.5
	maxImportBytes       = 1 << 20
)

type Services struct {
	Documents *service.DocumentService
	Staging   *service.StagingService
	Templates *service.TemplateService
	Workspace *service.WorkspaceService
	History   *service.HistoryService
	Commit    *service.CommitService
}

type Handler struct {
	docs       *service.DocumentService
	staging    *service.StagingService
	templates  *service.TemplateService
	workspace  *service.WorkspaceService
	history    *service.HistoryService
	commit     *service.CommitService
	ocrDefault bool
	basePath   string
}

func New(s Services, ocrDefault bool) *Handler {
	return &Handler{
		docs:       s.Documents,
		staging:    s.Staging,
		templates:  s.Templates,
		workspace:  s.Workspace,
		history:    s.History,
		commit:     s.Commit,
		ocrDefault: ocrDefault,
	}
}

// writeError maps service errors onto status codes. Anything that is not a
// client error is logged and reported generically.
func writeError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	default:
		service.NewLogger(c.Request.Context()).LogError(operation, err)
		msg := "internal error"
		if errors.Is(err, domain.ErrCommitFailed) {
			msg = "redaction failed"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": msg})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": msg})
}

func safeName(raw string) (string, error) {
	return service.SafeName(raw)
}

// filenameParam reduces a path or body filename to its base name.
func filenameParam(c *gin.Context, raw string) (string, bool) {
	name, err := safeName(raw)
	if err != nil {
		writeError(c, "filename", err)
		return "", false
	}
	return name, true
}

func pageParam(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(strings.TrimSpace(c.Param("page")))
	if err != nil || page < 0 {
		badRequest(c, "invalid page")
		return 0, false
	}
	return page, true
}

func queryFloat(c *gin.Context, key string, def float64) (float64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return v, true
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return v, true
}

func queryBool(c *gin.Context, key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}
