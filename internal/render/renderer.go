package render

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/semaphore"
)

// Renderer rasterizes PDF pages with MuPDF and caches PNGs on disk.
type Renderer struct {
	cacheDir string
	sem      *semaphore.Weighted
}

// NewRenderer caches into cacheDir and runs at most maxConcurrent MuPDF
// renders at once (NumCPU when <= 0).
func NewRenderer(cacheDir string, maxConcurrent int) *Renderer {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}
	return &Renderer{cacheDir: cacheDir, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (r *Renderer) CacheDir() string {
	return r.cacheDir
}

// CacheKey identifies a file version: sha1 of path, mtime and size, 16 hex chars.
func CacheKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())))
	return hex.EncodeToString(sum[:])[:16], nil
}

// CachePath is where page of path is stored at dpi.
func (r *Renderer) CachePath(key string, page int, dpi float64) string {
	return filepath.Join(r.cacheDir, fmt.Sprintf("%s_p%d_%d.png", key, page, int(math.Round(dpi))))
}

// RenderPage returns the path of a PNG of page at dpi, rendering it only when
// no cached copy exists.
func (r *Renderer) RenderPage(ctx context.Context, path string, page int, dpi float64) (string, error) {
	key, err := CacheKey(path)
	if err != nil {
		return "", err
	}
	out := r.CachePath(key, page, dpi)
	if _, err := os.Stat(out); err == nil {
		now := time.Now()
		_ = os.Chtimes(out, now, now) // keeps hot pages away from the janitor
		return out, nil
	}

	data, err := r.withDocument(ctx, path, func(doc *fitz.Document) ([]byte, error) {
		if err := checkPage(doc, page); err != nil {
			return nil, err
		}
		return doc.ImagePNG(page, dpi)
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create render cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.cacheDir, ".render-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create render file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write render file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write render file: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", fmt.Errorf("failed to store render file: %w", err)
	}
	return out, nil
}

// RasterizePage renders page into memory.
func (r *Renderer) RasterizePage(ctx context.Context, path string, page int, dpi float64) (image.Image, error) {
	var img image.Image
	_, err := r.withDocument(ctx, path, func(doc *fitz.Document) ([]byte, error) {
		if err := checkPage(doc, page); err != nil {
			return nil, err
		}
		rgba, err := doc.ImageDPI(page, dpi)
		if err != nil {
			return nil, err
		}
		img = rgba
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *Renderer) PageCount(ctx context.Context, path string) (int, error) {
	var n int
	_, err := r.withDocument(ctx, path, func(doc *fitz.Document) ([]byte, error) {
		n = doc.NumPage()
		return nil, nil
	})
	return n, err
}

// PageText is MuPDF's native text extraction for page.
func (r *Renderer) PageText(ctx context.Context, path string, page int) (string, error) {
	var text string
	_, err := r.withDocument(ctx, path, func(doc *fitz.Document) ([]byte, error) {
		if err := checkPage(doc, page); err != nil {
			return nil, err
		}
		t, err := doc.Text(page)
		text = t
		return nil, err
	})
	return text, err
}

func checkPage(doc *fitz.Document, page int) error {
	if page < 0 || page >= doc.NumPage() {
		return fmt.Errorf("%w: page %d", domain.ErrNotFound, page)
	}
	return nil
}

// withDocument opens path under the concurrency limit. Missing or unreadable
// files are reported as domain.ErrNotFound.
func (r *Renderer) withDocument(ctx context.Context, path string, fn func(*fitz.Document) ([]byte, error)) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a readable pdf: %v", domain.ErrNotFound, filepath.Base(path), err)
	}
	defer doc.Close()

	out, err := fn(doc)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if errors.Is(err, fitz.ErrPageMissing) {
			return nil, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	return out, nil
}
