package suggestions

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// Detection is one region found by the visual detector, in pixels of the
// image it was given.
type Detection struct {
	Label      string
	Confidence float64
	BBox       [4]float64
}

// Entity is a sensitive span found by an entity recognizer.
type Entity struct {
	Label string
	Text  string
}

type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// Models holds the loaded capabilities. Either field may be nil.
type Models struct {
	Detector   Detector
	Recognizer EntityRecognizer
}

func (m *Models) empty() bool {
	return m == nil || (m.Detector == nil && m.Recognizer == nil)
}

// ModelProvider hands out the process-wide models.
type ModelProvider interface {
	Models(ctx context.Context) (*Models, error)
}

// LoaderFunc builds the models on first use.
type LoaderFunc func(ctx context.Context) (*Models, error)

// ErrModelsDegraded accompanies a partial load. The models returned with it
// are usable, but the load is retried later.
var ErrModelsDegraded = errors.New("models degraded")

const (
	DefaultLoadTimeout  = 30 * time.Second
	DefaultRetryBackoff = time.Minute
)

// LazyProvider loads the models on first use and serves them to every caller
// once a load succeeds. A failed or degraded load is served until the backoff
// expires and is then attempted again.
type LazyProvider struct {
	load    LoaderFunc
	timeout time.Duration
	backoff time.Duration
	now     func() time.Time

	mu      sync.Mutex
	done    bool
	models  *Models
	err     error
	retryAt time.Time
}

func NewLazyProvider(load LoaderFunc, timeout, backoff time.Duration) *LazyProvider {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &LazyProvider{load: load, timeout: timeout, backoff: backoff, now: time.Now}
}

// Models loads outside the caller's cancellation so that one aborted request
// does not decide what every later request gets.
func (p *LazyProvider) Models(ctx context.Context) (*Models, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done || p.now().Before(p.retryAt) {
		return p.models, p.err
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	m, err := p.load(lctx)
	if err == nil && m == nil {
		m = &Models{}
	}
	p.models, p.err = m, err
	if err != nil {
		p.retryAt = p.now().Add(p.backoff)
		return m, err
	}
	p.done = true
	return m, nil
}

// StaticProvider serves an already built set of models.
type StaticProvider struct {
	M *Models
}

func (p StaticProvider) Models(context.Context) (*Models, error) {
	if p.M == nil {
		return &Models{}, nil
	}
	return p.M, nil
}
