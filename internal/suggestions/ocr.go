package suggestions

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/otiai10/gosseract/v2"
)

// Word is one recognized word with its box in OCR image pixels.
type Word struct {
	Text string
	Box  image.Rectangle
}

type OCRResult struct {
	Text  string
	Words []Word
	Size  domain.Size
}

type OCR interface {
	Recognize(ctx context.Context, img image.Image) (*OCRResult, error)
}

// Tesseract runs gosseract on a grayscale copy of the page. A client is made
// per call since gosseract clients are not safe for concurrent use.
type Tesseract struct {
	language string
}

func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := toGray(img)
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("failed to encode ocr input: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to load ocr image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("ocr failed: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr word boxes failed: %w", err)
	}

	res := &OCRResult{
		Text: text,
		Size: domain.Size{Width: gray.Bounds().Dx(), Height: gray.Bounds().Dy()},
	}
	for _, b := range boxes {
		if w := strings.TrimSpace(b.Word); w != "" {
			res.Words = append(res.Words, Word{Text: w, Box: b.Box})
		}
	}
	return res, nil
}

// Find returns the union box of every run of words spelling needle, compared
// with whitespace collapsed.
func (r *OCRResult) Find(needle string) []image.Rectangle {
	needle = strings.Join(strings.Fields(needle), " ")
	if needle == "" || len(r.Words) == 0 {
		return nil
	}

	var sb strings.Builder
	starts := make([]int, len(r.Words))
	for i, w := range r.Words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		starts[i] = sb.Len()
		sb.WriteString(w.Text)
	}
	joined := sb.String()

	var out []image.Rectangle
	for from := 0; from < len(joined); {
		idx := strings.Index(joined[from:], needle)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(needle)

		var box image.Rectangle
		for i, w := range r.Words {
			ws, we := starts[i], starts[i]+len(w.Text)
			if ws < end && start < we {
				box = box.Union(w.Box)
			}
		}
		if !box.Empty() {
			out = append(out, box)
		}
		from = start + 1
	}
	return out
}
