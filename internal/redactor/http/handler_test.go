package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docdesk/redactor-backend/internal/api/http/middleware"
	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
	"github.com/docdesk/redactor-backend/internal/redactor/service"
	"github.com/docdesk/redactor-backend/internal/storage/sqlstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "/api/v1/redactor"

type fakeRenderer struct {
	dir   string
	pages int
	text  string
}

func (f *fakeRenderer) RenderPage(_ context.Context, path string, page int, dpi float64) (string, error) {
	if page < 0 || page >= f.pages {
		return "", fmt.Errorf("%w: page %d", domain.ErrNotFound, page)
	}
	out := filepath.Join(f.dir, fmt.Sprintf("%s_p%d_%g.png", filepath.Base(path), page, dpi))
	if err := os.WriteFile(out, []byte("\x89PNG fake"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeRenderer) PageCount(context.Context, string) (int, error) {
	return f.pages, nil
}

func (f *fakeRenderer) PageText(_ context.Context, _ string, page int) (string, error) {
	if page != 0 {
		return "", nil
	}
	return f.text, nil
}

type fakeSuggestions struct{}

func (fakeSuggestions) Extract(_ context.Context, _ string, useOCR bool, minConf float64) ([]domain.Suggestion, error) {
	out := []domain.Suggestion{{Label: "EMAIL", Text: "a@b.io", Mode: domain.KindText, Source: domain.SourceNER}}
	if useOCR {
		out = append(out, domain.Suggestion{Label: "EMAIL", Mode: domain.KindArea, Source: domain.SourceOCR})
	}
	if minConf <= 0.9 {
		out = append(out, domain.Suggestion{Label: "SENSITIVE", Mode: domain.KindArea, Confidence: 0.9, Source: domain.SourceDetector})
	}
	return out, nil
}

// copyRedactor copies the source and appends the change count.
type copyRedactor struct{}

func (copyRedactor) RedactFile(_ context.Context, src string, w io.Writer, changes []domain.RedactionChange) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%% redacted %d", len(changes))
	return err
}

type fixture struct {
	router  *gin.Engine
	uploads string
	outputs string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := sqlstore.OpenTestDB(t)
	locks := service.NewKeyedMutex()
	uploads := filepath.Join(t.TempDir(), "uploads")
	outputs := filepath.Join(t.TempDir(), "outputs")
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	stagingRepo := repository.NewStagingRepository(db)
	staging := service.NewStagingService(stagingRepo, locks)
	workspace := service.NewWorkspaceService(db, repository.NewWorkspaceRepository(db), stagingRepo, locks)
	renderer := &fakeRenderer{dir: t.TempDir(), pages: 2, text: "TAX INVOICE\nSold by Amazon"}

	templates, err := service.NewTemplateService(db, repository.NewTemplateRepository(db), staging, renderer, []string{"Amazon"})
	require.NoError(t, err)
	history := service.NewHistoryService(repository.NewHistoryRepository(db))

	h := New(Services{
		Documents: service.NewDocumentService(renderer, fakeSuggestions{}, workspace, uploads, outputs, 1<<20),
		Staging:   staging,
		Templates: templates,
		Workspace: workspace,
		History:   history,
		Commit:    service.NewCommitService(db, stagingRepo, history, copyRedactor{}, locks, uploads, outputs),
	}, false)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	h.Register(r.Group(base))

	return &fixture{router: r, uploads: uploads, outputs: outputs}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, base+path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) putDocument(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.uploads, name), []byte("%PDF-1.4 test"), 0o644))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	t.Run("stores and opens the document", func(t *testing.T) {
		body, ct := multipartBody(t, "pdf", "scan.pdf", []byte("%PDF-1.7 body"))
		req := httptest.NewRequest(http.MethodPost, base+"/upload?module=invoices", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		out := decode(t, w)
		name := out["filename"].(string)
		assert.True(t, strings.HasPrefix(name, "invoices_"))
		assert.Equal(t, float64(2), out["pages"])
		assert.Contains(t, out["text_preview"], "TAX INVOICE")
		assert.FileExists(t, filepath.Join(f.uploads, name))

		list := decode(t, f.do(t, http.MethodGet, "/workspace/list", nil))
		docs := list["documents"].([]interface{})
		require.Len(t, docs, 1)
		assert.Equal(t, "scan.pdf", docs[0].(map[string]interface{})["display_name"])
	})

	t.Run("rejects non pdf", func(t *testing.T) {
		body, ct := multipartBody(t, "pdf", "a.txt", []byte("hello"))
		req := httptest.NewRequest(http.MethodPost, base+"/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/upload", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPages(t *testing.T) {
	f := newFixture(t)
	f.putDocument(t, "doc.pdf")

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"default dpi", "/documents/doc.pdf/pages/0", http.StatusOK},
		{"clamped dpi", "/documents/doc.pdf/pages/1?dpi=900", http.StatusOK},
		{"thumbnail", "/documents/doc.pdf/thumbnails/0", http.StatusOK},
		{"page out of range", "/documents/doc.pdf/pages/7", http.StatusNotFound},
		{"bad page", "/documents/doc.pdf/pages/x", http.StatusBadRequest},
		{"bad dpi", "/documents/doc.pdf/pages/0?dpi=abc", http.StatusBadRequest},
		{"unknown document", "/documents/nope.pdf/pages/0", http.StatusNotFound},
		{"traversal", "/documents/..secret.pdf/pages/0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
				assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))
			}
		})
	}
}

func TestSuggestionsAndAutodetect(t *testing.T) {
	f := newFixture(t)
	f.putDocument(t, "doc.pdf")

	out := decode(t, f.do(t, http.MethodGet, "/documents/doc.pdf/suggestions", nil))
	assert.Len(t, out["suggestions"], 2)

	out = decode(t, f.do(t, http.MethodGet, "/documents/doc.pdf/suggestions?ocr=1&min_conf=0.95", nil))
	assert.Len(t, out["suggestions"], 2)

	w := f.do(t, http.MethodGet, "/documents/doc.pdf/suggestions?min_conf=high", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/documents/missing.pdf/suggestions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	out = decode(t, f.do(t, http.MethodGet, "/documents/doc.pdf/autodetect", nil))
	assert.Equal(t, "Amazon", out["company"])
	assert.Equal(t, "invoice", out["doc_type"])
}

func TestPreviewFlow(t *testing.T) {
	f := newFixture(t)
	changes := []domain.RedactionChange{
		{Page: 0, Kind: domain.KindArea, X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1},
		{Page: 0, Kind: domain.KindText, Text: "Secret"},
	}

	w := f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "doc.pdf", "changes": changes})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, f.do(t, http.MethodGet, "/preview/load/doc.pdf", nil))
	assert.Len(t, out["preview"], 2)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/undo", gin.H{"filename": "doc.pdf"}).Code)
	out = decode(t, f.do(t, http.MethodGet, "/preview/load/doc.pdf", nil))
	preview := out["preview"].([]interface{})
	require.Len(t, preview, 1)
	assert.Equal(t, "area", preview[0].(map[string]interface{})["type"])

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/clear", gin.H{"filename": "doc.pdf"}).Code)
	out = decode(t, f.do(t, http.MethodGet, "/preview/load/doc.pdf", nil))
	assert.Empty(t, out["preview"])

	t.Run("undo on empty is fine", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/undo", gin.H{"filename": "doc.pdf"}).Code)
	})

	t.Run("invalid change", func(t *testing.T) {
		bad := []domain.RedactionChange{{Page: 0, Kind: domain.KindArea}}
		w := f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "doc.pdf", "changes": bad})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("traversal in body", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "../../etc/passwd", "changes": changes})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing filename", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/preview/clear", gin.H{}).Code)
	})
}

func TestApplyAndDownload(t *testing.T) {
	f := newFixture(t)
	f.putDocument(t, "doc.pdf")

	w := f.do(t, http.MethodPost, "/apply", gin.H{"filename": "doc.pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing staged")

	changes := []domain.RedactionChange{{Page: 0, Kind: domain.KindText, Text: "Secret"}}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "doc.pdf", "changes": changes}).Code)

	w = f.do(t, http.MethodPost, "/apply", gin.H{"filename": "doc.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "doc_Redacted.pdf", out["output"])
	assert.Equal(t, base+"/download/doc_Redacted.pdf", out["download_url"])

	src, err := os.ReadFile(filepath.Join(f.uploads, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(src))

	w = f.do(t, http.MethodGet, "/download/doc_Redacted.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "doc_Redacted.pdf")
	assert.Contains(t, w.Body.String(), "% redacted 1")

	out = decode(t, f.do(t, http.MethodGet, "/preview/load/doc.pdf", nil))
	assert.Empty(t, out["preview"])

	out = decode(t, f.do(t, http.MethodGet, "/history?limit=5", nil))
	history := out["history"].([]interface{})
	require.Len(t, history, 1)
	assert.Equal(t, "doc_Redacted.pdf", history[0].(map[string]interface{})["output_filename"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/download/other.pdf", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/history?limit=x", nil).Code)
}

func TestApply_MissingSource(t *testing.T) {
	f := newFixture(t)
	changes := []domain.RedactionChange{{Page: 0, Kind: domain.KindText, Text: "Secret"}}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "gone.pdf", "changes": changes}).Code)

	w := f.do(t, http.MethodPost, "/apply", gin.H{"filename": "gone.pdf"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	out := decode(t, f.do(t, http.MethodGet, "/preview/load/gone.pdf", nil))
	assert.Len(t, out["preview"], 1)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	box := domain.RedactionChange{Page: 0, Kind: domain.KindArea, X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}

	w := f.do(t, http.MethodPost, "/templates", gin.H{"name": "Amazon invoice", "company": "amazon", "doc_type": "invoice", "boxes": []domain.RedactionChange{box}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	t.Run("list filters", func(t *testing.T) {
		out := decode(t, f.do(t, http.MethodGet, "/templates?company=amazon", nil))
		assert.Len(t, out["templates"], 1)
		out = decode(t, f.do(t, http.MethodGet, "/templates?company=fedex", nil))
		assert.Empty(t, out["templates"])
	})

	t.Run("create from staging", func(t *testing.T) {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/preview/save", gin.H{"filename": "doc.pdf", "changes": []domain.RedactionChange{box, box}}).Code)
		w := f.do(t, http.MethodPost, "/templates", gin.H{"name": "From staging", "filename": "doc.pdf"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		out := decode(t, f.do(t, http.MethodGet, "/templates/"+decode(t, w)["id"].(string), nil))
		assert.Len(t, out["boxes"], 2)
	})

	t.Run("create needs boxes", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/templates", gin.H{"name": "Empty"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update creates versions", func(t *testing.T) {
		moved := box
		moved.X = 0.5
		w := f.do(t, http.MethodPut, "/templates/"+id, gin.H{"boxes": []domain.RedactionChange{moved}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(1), decode(t, w)["version"])

		out := decode(t, f.do(t, http.MethodGet, "/templates/"+id+"/versions", nil))
		assert.Len(t, out["versions"], 1)

		out = decode(t, f.do(t, http.MethodGet, "/templates/"+id, nil))
		boxes := out["boxes"].([]interface{})
		assert.Equal(t, 0.5, boxes[0].(map[string]interface{})["x"])
	})

	t.Run("duplicate and rename", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/templates/"+id+"/duplicate", gin.H{"name": "Copy"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		copyID := decode(t, w)["id"].(string)
		assert.NotEqual(t, id, copyID)

		assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/templates/"+copyID+"/rename", gin.H{"name": "Renamed"}).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/templates/"+copyID+"/rename", gin.H{"name": " "}).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/templates/missing/rename", gin.H{"name": "x"}).Code)
	})

	t.Run("export then import", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/templates/"+id+"/export", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		exported := w.Body.Bytes()

		req := httptest.NewRequest(http.MethodPost, base+"/templates/import", bytes.NewReader(exported))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotEqual(t, id, decode(t, rec)["id"])

		body, ct := multipartBody(t, "file", "t.json", exported)
		req = httptest.NewRequest(http.MethodPost, base+"/templates/import", body)
		req.Header.Set("Content-Type", ct)
		rec = httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("import rejects schema violations", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, base+"/templates/import", strings.NewReader(`{"name": 5}`))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("apply in page mode", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/templates/"+id+"/apply", gin.H{"filename": "target.pdf", "mode": "page", "target_page": 3})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(1), decode(t, w)["staged"])

		out := decode(t, f.do(t, http.MethodGet, "/preview/load/target.pdf", nil))
		preview := out["preview"].([]interface{})
		require.Len(t, preview, 1)
		assert.Equal(t, float64(3), preview[0].(map[string]interface{})["page"])

		w = f.do(t, http.MethodPost, "/templates/"+id+"/apply", gin.H{"filename": "target.pdf", "mode": "page"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.do(t, http.MethodPost, "/templates/missing/apply", gin.H{"filename": "target.pdf"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown template", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/templates/missing", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/templates/missing/versions", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/templates/missing/export", nil).Code)
	})
}

func TestWorkspace(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/workspace/open", gin.H{"filename": "a.pdf"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/workspace/open", gin.H{"filename": "b.pdf", "display_name": "B"}).Code)

	active := func() string {
		out := decode(t, f.do(t, http.MethodGet, "/workspace/list", nil))
		for _, d := range out["documents"].([]interface{}) {
			doc := d.(map[string]interface{})
			if doc["active"] == true {
				return doc["filename"].(string)
			}
		}
		return ""
	}
	assert.Equal(t, "b.pdf", active())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/workspace/set_active", gin.H{"filename": "a.pdf"}).Code)
	assert.Equal(t, "a.pdf", active())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/workspace/set_active", gin.H{"filename": "zzz.pdf"}).Code)
	assert.Equal(t, "a.pdf", active())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/workspace/close", gin.H{"filename": "a.pdf"}).Code)
	assert.Equal(t, "b.pdf", active())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/workspace/open", gin.H{}).Code)
}

func TestHeavyRoutesUseMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Services{}, false)
	r := gin.New()
	h.Register(r.Group(base), func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/upload"},
		{http.MethodGet, "/documents/x.pdf/suggestions"},
		{http.MethodPost, "/apply"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, base+tc.path, nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code, tc.path)
	}
}
