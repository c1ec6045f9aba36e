// Package strategy implements the pluggable execution behaviors that wrap
// a single agent invocation: plain call, retry with backoff, parallel
// fan-out and first-to-ahead-by-k voting. Strategies are built from their
// ExecutionSpec at machine-load time so unknown tags and malformed
// parameter bags never reach the run loop.
package strategy

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/memgrafter/flatagents/internal/expr"
	"github.com/memgrafter/flatagents/pkg/domain"
)

// Call performs one agent invocation with already-resolved input.
type Call func(ctx context.Context, input map[string]any) (map[string]any, error)

// Strategy executes an agent call under a cross-cutting behavior. The step
// trace receives one SampleRecord per draw so every run stays replayable.
type Strategy interface {
	Execute(ctx context.Context, call Call, input map[string]any, step *domain.StepTrace) (any, error)
}

// Deps are the collaborator seams strategies need. Sleep and Rand are
// injectable so retry timing is testable without waiting.
type Deps struct {
	Logger    *slog.Logger
	Evaluator *expr.Evaluator
	// Sleep waits for d or until ctx is done. Nil means a real wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a uniform sample from [0, 1). Nil means math/rand.
	Rand func() float64
}

func (d Deps) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d Deps) rand() float64 {
	if d.Rand != nil {
		return d.Rand()
	}
	return rand.Float64()
}

// Factory builds a strategy from its parameter bag. Factories run at
// machine-load time; parameter errors are configuration errors.
type Factory func(params map[string]any, deps Deps) (Strategy, error)

// Registry maps strategy tags to factories. The built-in tags are always
// present; hosts may register custom ones before machines are constructed.
type Registry struct {
	deps      Deps
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in strategies registered.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		deps:      deps,
		factories: make(map[string]Factory),
	}
	r.Register("default", newDefault)
	r.Register("retry", newRetry)
	r.Register("parallel", newParallel)
	r.Register("voting", newVoting)
	return r
}

// Register adds a custom strategy factory under a tag.
func (r *Registry) Register(tag string, f Factory) {
	r.factories[tag] = f
}

// Has reports whether a tag is registered.
func (r *Registry) Has(tag string) bool {
	_, ok := r.factories[tag]
	return ok
}

// Build constructs the strategy for a spec. Unknown tags and malformed
// params are ConfigErrors, raised at load time.
func (r *Registry) Build(spec domain.ExecutionSpec) (Strategy, error) {
	f, ok := r.factories[spec.Type]
	if !ok {
		return nil, &domain.ConfigError{Reason: "unknown execution strategy " + strconvQuote(spec.Type)}
	}
	s, err := f(spec.Params, r.deps)
	if err != nil {
		return nil, &domain.ConfigError{Reason: "strategy " + strconvQuote(spec.Type) + ": " + err.Error()}
	}
	return s, nil
}

// decodeParams strictly decodes a parameter bag; unused keys are errors so
// typos surface at load time instead of silently changing behavior.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}

func strconvQuote(s string) string {
	return `"` + s + `"`
}

// defaultStrategy is a single call; errors propagate untouched.
type defaultStrategy struct{}

func newDefault(params map[string]any, _ Deps) (Strategy, error) {
	var cfg struct{}
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return &defaultStrategy{}, nil
}

func (defaultStrategy) Execute(ctx context.Context, call Call, input map[string]any, _ *domain.StepTrace) (any, error) {
	out, err := call(ctx, input)
	if err != nil {
		return nil, err
	}
	return out, nil
}
