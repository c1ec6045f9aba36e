package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

type parallelConfig struct {
	NSamples int `mapstructure:"n_samples"`
}

type parallelStrategy struct {
	cfg  parallelConfig
	deps Deps
}

func newParallel(params map[string]any, deps Deps) (Strategy, error) {
	var cfg parallelConfig
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.NSamples < 1 {
		return nil, fmt.Errorf("n_samples must be at least 1, got %d", cfg.NSamples)
	}
	return &parallelStrategy{cfg: cfg, deps: deps}, nil
}

// Execute issues n_samples concurrent calls with identical input and
// returns {results, failures}, both in sample order regardless of
// completion order. A single failed sample does not fail the batch; the
// batch fails only when every sample fails.
func (p *parallelStrategy) Execute(ctx context.Context, call Call, input map[string]any, step *domain.StepTrace) (any, error) {
	n := p.cfg.NSamples
	results := make([]any, n)
	failures := make([]any, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := call(ctx, input)
			if err != nil {
				errs[i] = err
				failures[i] = err.Error()
				return
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	failed := 0
	for i := 0; i < n; i++ {
		rec := domain.SampleRecord{Index: i, Valid: errs[i] == nil}
		if errs[i] != nil {
			failed++
			rec.RedFlag = "sample_failed"
			rec.Err = errs[i].Error()
		}
		if step != nil {
			step.Samples = append(step.Samples, rec)
		}
	}

	if failed == n {
		// Surface cancellation as a single outcome, not a partial batch.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := domain.KindOf(errs[0])
		if kind == "" {
			kind = domain.KindAgentExecution
		}
		return nil, &ports.AgentError{Kind: kind, Err: fmt.Errorf("all %d parallel samples failed, first: %w", n, errs[0])}
	}

	return map[string]any{
		"results":  results,
		"failures": failures,
	}, nil
}
