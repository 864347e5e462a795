package suggestions

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelServer is the HTTP client for the detector and entity models, served
// by the model process next to the API:
//
//	GET  /health  -> {"detector": bool, "ner": bool}
//	POST /detect  {"image": base64 png} -> {"detections": [{"label", "confidence", "bbox"}]}
//	POST /ner     {"text": string}      -> {"entities":   [{"label", "text"}]}
type ModelServer struct {
	baseURL   string
	http      *http.Client
	inputSize int
}

func NewModelServer(baseURL string, timeout time.Duration, inputSize int) *ModelServer {
	return &ModelServer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		inputSize: inputSize,
	}
}

type healthResponse struct {
	Detector bool `json:"detector"`
	NER      bool `json:"ner"`
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Detections []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"`
	} `json:"detections"`
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponse struct {
	Entities []Entity `json:"entities"`
}

// Load asks the server which models it has. A recognizer is only returned
// when the server reports one.
func (s *ModelServer) Load(ctx context.Context) (*Models, error) {
	var health healthResponse
	if err := s.call(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, fmt.Errorf("failed to reach model server: %w", err)
	}

	m := &Models{}
	if health.Detector {
		m.Detector = &serverDetector{s: s}
	}
	if health.NER {
		m.Recognizer = &serverRecognizer{s: s}
	}
	return m, nil
}

type serverDetector struct {
	s *ModelServer
}

// Detect downsizes the page to the detector input size and scales the
// returned boxes back to the caller's pixel space.
func (d *serverDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	small, factor := fitWithin(img, d.s.inputSize)

	var buf bytes.Buffer
	if err := png.Encode(&buf, small); err != nil {
		return nil, fmt.Errorf("failed to encode detector input: %w", err)
	}

	var resp detectResponse
	req := detectRequest{Image: base64.StdEncoding.EncodeToString(buf.Bytes())}
	if err := d.s.call(ctx, http.MethodPost, "/detect", req, &resp); err != nil {
		return nil, err
	}

	out := make([]Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		if len(det.BBox) != 4 {
			continue
		}
		var box [4]float64
		for i, v := range det.BBox {
			box[i] = v / factor
		}
		out = append(out, Detection{Label: det.Label, Confidence: det.Confidence, BBox: box})
	}
	return out, nil
}

type serverRecognizer struct {
	s *ModelServer
}

func (r *serverRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var resp nerResponse
	if err := r.s.call(ctx, http.MethodPost, "/ner", nerRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (s *ModelServer) call(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("model server decode: %w", err)
	}
	return nil
}

// NewLoader builds the default model loader: the model server when baseURL is
// set, with the pattern recognizer standing in for a missing entity model.
// An unreachable server with patterns enabled yields the patterns together
// with ErrModelsDegraded.
func NewLoader(baseURL string, timeout time.Duration, inputSize int, patternNER bool) LoaderFunc {
	return func(ctx context.Context) (*Models, error) {
		m := &Models{}
		var loadErr error
		if baseURL != "" {
			loaded, err := NewModelServer(baseURL, timeout, inputSize).Load(ctx)
			if err != nil && !patternNER {
				return nil, err
			}
			if err != nil {
				logf(ctx, "warn", "load_models", "falling back to patterns error=%v", err)
				loadErr = fmt.Errorf("%w: %v", ErrModelsDegraded, err)
			} else {
				m = loaded
			}
		}
		if m.Recognizer == nil && patternNER {
			m.Recognizer = NewPatternRecognizer()
		}
		return m, loadErr
	}
}
