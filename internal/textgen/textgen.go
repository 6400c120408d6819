// Package textgen defines the generative text capability used to draft
// parent messages. Providers are external; this package only carries the
// contract and the degrade-on-failure wrapper callers rely on.
package textgen

import (
	"context"
	"errors"
	"strings"
	"time"

	"academycore/internal/observability"
)

// Unavailable is returned in place of generated text whenever the provider fails.
const Unavailable = "AI text generation is currently unavailable."

// ErrNoProvider is reported when no generator has been configured.
var ErrNoProvider = errors.New("textgen: no provider configured")

// Generator produces free text from a prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, prompt string) (string, error)

// GenerateText calls f.
func (f Func) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Degrading wraps a Generator so failures never reach the caller.
type Degrading struct {
	next    Generator
	timeout time.Duration
	logger  observability.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Degrading generator.
type Option func(*Degrading)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Degrading) { g.timeout = d }
}

// WithLogger records provider failures.
func WithLogger(l observability.Logger) Option {
	return func(g *Degrading) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics observes provider calls under "textgen.generate".
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(g *Degrading) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewDegrading wraps next (which may be nil).
func NewDegrading(next Generator, opts ...Option) *Degrading {
	g := &Degrading{next: next, timeout: 30 * time.Second, logger: observability.NoopLogger{}, metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the provider's text, or Unavailable on any error or empty reply.
func (g *Degrading) Generate(ctx context.Context, prompt string) string {
	text, err := g.GenerateText(ctx, prompt)
	if err != nil {
		return Unavailable
	}
	return text
}

// GenerateText satisfies Generator; the returned error is always nil.
func (g *Degrading) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := g.call(ctx, prompt)
	g.metrics.Observe(ctx, "textgen.generate", err == nil, time.Since(start))
	if err != nil {
		g.logger.Warn("text generation failed", "err", err)
		return Unavailable, nil
	}
	return text, nil
}

func (g *Degrading) call(ctx context.Context, prompt string) (text string, err error) {
	if g.next == nil {
		return "", ErrNoProvider
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errors.New("textgen: provider panicked")
		}
	}()
	text, err = g.next.GenerateText(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("textgen: empty response")
	}
	return strings.TrimSpace(text), err
}
