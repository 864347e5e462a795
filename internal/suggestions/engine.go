package suggestions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"

	"github.com/docdesk/redactor-backend/internal/api/http/middleware"
	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDetectDPI   = 150
	DefaultOCRDPI      = 300
	DefaultParallelism = 4
)

// PageSource is the rendering and text backend the engine scans.
type PageSource interface {
	PageCount(ctx context.Context, path string) (int, error)
	PageText(ctx context.Context, path string, page int) (string, error)
	RasterizePage(ctx context.Context, path string, page int, dpi float64) (image.Image, error)
}

// Cache stores unfiltered suggestion lists by document content hash.
type Cache interface {
	Get(ctx context.Context, contentHash string, ocr bool) ([]domain.Suggestion, bool, error)
	Set(ctx context.Context, contentHash string, ocr bool, suggestions []domain.Suggestion) error
}

type Config struct {
	DetectDPI   float64
	OCRDPI      float64
	Parallelism int
}

type Engine struct {
	pages    PageSource
	provider ModelProvider
	ocr      OCR
	cache    Cache
	cfg      Config
}

// NewEngine wires the engine. ocr and cache may be nil.
func NewEngine(pages PageSource, provider ModelProvider, ocr OCR, cache Cache, cfg Config) *Engine {
	if cfg.DetectDPI <= 0 {
		cfg.DetectDPI = DefaultDetectDPI
	}
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = DefaultOCRDPI
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Engine{pages: pages, provider: provider, ocr: ocr, cache: cache, cfg: cfg}
}

// Extract scans every page of the document at path. Model trouble yields an
// empty list; only a missing document or cancellation is an error. Results
// are ordered by page, area suggestions before text ones.
func (e *Engine) Extract(ctx context.Context, path string, useOCR bool, minConfidence float64) ([]domain.Suggestion, error) {
	hash, err := contentHash(path)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, hash, useOCR)
		if err != nil {
			logf(ctx, "warn", "cache_get", "error=%v", err)
		} else if ok {
			return filterConfidence(cached, minConfidence), nil
		}
	}

	all, complete, err := e.scan(ctx, path, useOCR)
	if err != nil {
		return nil, err
	}
	if all == nil {
		return []domain.Suggestion{}, nil
	}

	if e.cache != nil && !complete {
		logf(ctx, "info", "cache_set", "skipped, scan was degraded")
	} else if e.cache != nil {
		if err := e.cache.Set(ctx, hash, useOCR, all); err != nil {
			logf(ctx, "warn", "cache_set", "error=%v", err)
		}
	}
	return filterConfidence(all, minConfidence), nil
}

// scan returns nil when no models are available. complete is false when a
// model, render or OCR step failed somewhere, in which case the result must
// not outlive the request.
func (e *Engine) scan(ctx context.Context, path string, useOCR bool) (all []domain.Suggestion, complete bool, err error) {
	models, err := e.provider.Models(ctx)
	complete = true
	if err != nil {
		logf(ctx, "warn", "load_models", "error=%v", err)
		if !errors.Is(err, ErrModelsDegraded) {
			return nil, false, nil
		}
		complete = false
	}
	if models.empty() {
		return nil, false, nil
	}

	count, err := e.pages.PageCount(ctx, path)
	if err != nil {
		return nil, false, err
	}

	perPage := make([][]domain.Suggestion, count)
	degraded := make([]bool, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for p := 0; p < count; p++ {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perPage[p], degraded[p] = e.scanPage(gctx, path, p, models, useOCR)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	all = []domain.Suggestion{}
	for p, s := range perPage {
		all = append(all, s...)
		if degraded[p] {
			complete = false
		}
	}
	return all, complete, nil
}

// scanPage reports degraded when any step was skipped because it failed.
func (e *Engine) scanPage(ctx context.Context, path string, page int, models *Models, useOCR bool) (_ []domain.Suggestion, degraded bool) {
	var areas, texts []domain.Suggestion

	if models.Detector != nil {
		found, ok := e.detect(ctx, path, page, models.Detector)
		areas = append(areas, found...)
		degraded = !ok
	}
	if models.Recognizer == nil {
		return areas, degraded
	}

	text, err := e.pages.PageText(ctx, path, page)
	if err != nil {
		logf(ctx, "warn", "page_text", "page=%d error=%v", page, err)
		degraded = true
	}

	var ocr *OCRResult
	if useOCR && e.ocr != nil {
		ocr, err = e.recognizeText(ctx, path, page)
		if err != nil {
			logf(ctx, "warn", "ocr", "page=%d error=%v", page, err)
			degraded = true
		} else {
			text = text + "\n" + ocr.Text
		}
	}

	entities, err := models.Recognizer.Recognize(ctx, text)
	if err != nil {
		logf(ctx, "warn", "recognize", "page=%d error=%v", page, err)
		return areas, true
	}

	seen := make(map[Entity]bool)
	for _, ent := range entities {
		if ent.Text == "" || seen[ent] {
			continue
		}
		seen[ent] = true
		texts = append(texts, domain.Suggestion{
			Label:  ent.Label,
			Text:   ent.Text,
			Page:   page,
			Mode:   domain.KindText,
			Source: domain.SourceNER,
		})
		if ocr == nil {
			continue
		}
		for _, r := range ocr.Find(ent.Text) {
			bbox := []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)}
			box, ok := domain.AreaChangeFromPixels(page, bbox, ocr.Size)
			if !ok {
				continue
			}
			areas = append(areas, domain.Suggestion{
				Label:  ent.Label,
				Text:   ent.Text,
				Page:   page,
				Mode:   domain.KindArea,
				BBox:   bbox,
				Box:    box,
				Source: domain.SourceOCR,
			})
		}
	}
	return append(areas, texts...), degraded
}

func (e *Engine) detect(ctx context.Context, path string, page int, det Detector) ([]domain.Suggestion, bool) {
	img, err := e.pages.RasterizePage(ctx, path, page, e.cfg.DetectDPI)
	if err != nil {
		logf(ctx, "warn", "detect", "page=%d render error=%v", page, err)
		return nil, false
	}
	detections, err := det.Detect(ctx, img)
	if err != nil {
		logf(ctx, "warn", "detect", "page=%d error=%v", page, err)
		return nil, false
	}

	size := domain.Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	var out []domain.Suggestion
	for _, d := range detections {
		bbox := d.BBox[:]
		box, ok := domain.AreaChangeFromPixels(page, bbox, size)
		if !ok {
			continue
		}
		out = append(out, domain.Suggestion{
			Label:      d.Label,
			Page:       page,
			Mode:       domain.KindArea,
			BBox:       append([]float64(nil), bbox...),
			Confidence: d.Confidence,
			Box:        box,
			Source:     domain.SourceDetector,
		})
	}
	return out, true
}

func (e *Engine) recognizeText(ctx context.Context, path string, page int) (*OCRResult, error) {
	img, err := e.pages.RasterizePage(ctx, path, page, e.cfg.OCRDPI)
	if err != nil {
		return nil, err
	}
	return e.ocr.Recognize(ctx, img)
}

// filterConfidence drops detector suggestions under min. Other sources carry
// no confidence and always pass.
func filterConfidence(in []domain.Suggestion, min float64) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, len(in))
	for _, s := range in {
		if s.Source == domain.SourceDetector && s.Confidence < min {
			continue
		}
		out = append(out, s)
	}
	return out
}

func contentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func logf(ctx context.Context, level, op, format string, args ...interface{}) {
	rid := middleware.GetRequestID(ctx)
	if rid == "" {
		rid = "unknown"
	}
	log.Printf("[%s] request_id=%s operation=suggestions.%s "+format, append([]interface{}{level, rid, op}, args...)...)
}
