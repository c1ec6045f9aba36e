package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/memgrafter/flatagents/pkg/domain"
)

type retryConfig struct {
	// Backoffs are the waits between attempts, in seconds. len(Backoffs)+1
	// total attempts are made.
	Backoffs []float64 `mapstructure:"backoffs"`
	// Jitter is the fraction of each backoff randomized as ±jitter.
	Jitter float64 `mapstructure:"jitter"`
}

type retryStrategy struct {
	cfg  retryConfig
	deps Deps
}

func newRetry(params map[string]any, deps Deps) (Strategy, error) {
	var cfg retryConfig
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return nil, fmt.Errorf("jitter must be within [0, 1], got %v", cfg.Jitter)
	}
	for _, b := range cfg.Backoffs {
		if b < 0 {
			return nil, fmt.Errorf("backoffs must be non-negative, got %v", b)
		}
	}
	return &retryStrategy{cfg: cfg, deps: deps}, nil
}

// Execute calls the agent up to len(backoffs)+1 times. After attempt i
// fails it waits backoffs[i] * (1 ± jitter) seconds. Exhausting every
// backoff surfaces the last error.
func (r *retryStrategy) Execute(ctx context.Context, call Call, input map[string]any, step *domain.StepTrace) (any, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := call(ctx, input)
		if err == nil {
			if step != nil {
				step.Samples = append(step.Samples, domain.SampleRecord{Index: attempt, Valid: true})
			}
			return out, nil
		}
		lastErr = err
		if step != nil {
			step.Samples = append(step.Samples, domain.SampleRecord{
				Index: attempt, Valid: false, RedFlag: "attempt_failed", Err: err.Error(),
			})
		}
		if attempt >= len(r.cfg.Backoffs) {
			return nil, lastErr
		}

		wait := r.cfg.Backoffs[attempt]
		if r.cfg.Jitter > 0 {
			// uniform(-jitter, +jitter)
			wait *= 1 + r.cfg.Jitter*(2*r.deps.rand()-1)
		}
		d := time.Duration(wait * float64(time.Second))
		r.deps.Logger.Debug("retrying agent call", "attempt", attempt+1, "wait", d, "err", err)
		if err := r.deps.sleep(ctx, d); err != nil {
			return nil, err
		}
	}
}
