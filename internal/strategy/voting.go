package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/memgrafter/flatagents/internal/expr"
	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

type votingConfig struct {
	// KMargin is the lead the front-runner needs over the runner-up to win
	// early. This bounds the expected sample count versus naive best-of-N.
	KMargin int `mapstructure:"k_margin"`
	// MaxCandidates caps the total draws; at exhaustion the plurality
	// leader wins.
	MaxCandidates int `mapstructure:"max_candidates"`
	// AnswerKey selects the output field that is tallied. Empty tallies the
	// whole output.
	AnswerKey string `mapstructure:"answer_key"`
	// ValidWhen is an expression over the output scope; samples for which
	// it does not hold are red-flagged and never reach the tally.
	ValidWhen string `mapstructure:"valid_when"`
	// Concurrency bounds in-flight draws. The default of 1 samples
	// sequentially, which never draws past the deciding sample; higher
	// values trade extra draws for latency.
	Concurrency int `mapstructure:"concurrency"`
}

type votingStrategy struct {
	cfg  votingConfig
	deps Deps
}

func newVoting(params map[string]any, deps Deps) (Strategy, error) {
	var cfg votingConfig
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.KMargin < 1 {
		return nil, fmt.Errorf("k_margin must be at least 1, got %d", cfg.KMargin)
	}
	if cfg.MaxCandidates < 1 {
		return nil, fmt.Errorf("max_candidates must be at least 1, got %d", cfg.MaxCandidates)
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be non-negative, got %d", cfg.Concurrency)
	}
	if cfg.ValidWhen != "" && deps.Evaluator == nil {
		return nil, fmt.Errorf("valid_when requires an expression evaluator")
	}
	return &votingStrategy{cfg: cfg, deps: deps}, nil
}

type tallyEntry struct {
	count int
	// lastIdx is the draw index at which the entry reached its current
	// count; ties at exhaustion break toward the earliest.
	lastIdx int
	// winner output returned when this answer wins.
	representative map[string]any
}

type draw struct {
	idx int
	out map[string]any
	err error
}

// Execute samples the agent until one normalized answer leads the
// runner-up by k_margin, or max_candidates draws are exhausted. Invalid
// samples are red-flagged: they are recorded in the trace but never counted
// toward the margin.
func (v *votingStrategy) Execute(ctx context.Context, call Call, input map[string]any, step *domain.StepTrace) (any, error) {
	max := v.cfg.MaxCandidates
	conc := v.cfg.Concurrency
	if conc < 1 {
		conc = 1
	}
	if conc > max {
		conc = max
	}

	// Sequential sampling never draws past the deciding sample.
	if conc == 1 {
		tally := make(map[string]*tallyEntry)
		for i := 0; i < max; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := call(ctx, input)
			if winner, done := v.tallyDraw(draw{idx: i, out: out, err: err}, tally, step); done {
				return winner, nil
			}
		}
		return v.exhausted(tally)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	draws := make(chan draw, max)
	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	go func() {
		for i := 0; i < max; i++ {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				out, err := call(ctx, input)
				select {
				case draws <- draw{idx: i, out: out, err: err}:
				case <-ctx.Done():
				}
			}(i)
		}
	}()
	defer wg.Wait()

	tally := make(map[string]*tallyEntry)
	pending := make(map[int]draw)
	next := 0

	for next < max {
		var d draw
		select {
		case d = <-draws:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		pending[d.idx] = d

		// Tally strictly in draw order so runs are deterministic even when
		// calls complete out of order.
		for {
			d, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			winner, done := v.tallyDraw(d, tally, step)
			if done {
				cancel()
				return winner, nil
			}
		}
	}

	return v.exhausted(tally)
}

// tallyDraw validates one draw, counts it, and reports a winner when the
// k-margin is reached.
func (v *votingStrategy) tallyDraw(d draw, tally map[string]*tallyEntry, step *domain.StepTrace) (map[string]any, bool) {
	rec := domain.SampleRecord{Index: d.idx}

	key, redFlag, errMsg := v.inspect(d)
	if redFlag != "" {
		rec.RedFlag = redFlag
		rec.Err = errMsg
		v.deps.Logger.Debug("red-flagged voting sample", "index", d.idx, "reason", redFlag)
		if step != nil {
			step.Samples = append(step.Samples, rec)
		}
		return nil, false
	}

	rec.Valid = true
	rec.Answer = key
	if step != nil {
		step.Samples = append(step.Samples, rec)
	}

	e := tally[key]
	if e == nil {
		e = &tallyEntry{representative: d.out}
		tally[key] = e
	}
	e.count++
	e.lastIdx = d.idx

	lead, runnerUp := standings(tally)
	if lead != nil && lead.count-runnerUp >= v.cfg.KMargin {
		return lead.representative, true
	}
	return nil, false
}

// inspect parses and validates a draw, returning the normalized answer key
// or a red-flag reason.
func (v *votingStrategy) inspect(d draw) (key, redFlag, errMsg string) {
	if d.err != nil {
		return "", "agent_error", d.err.Error()
	}

	if v.cfg.ValidWhen != "" {
		ok, err := v.deps.Evaluator.EvaluateBool(v.cfg.ValidWhen, expr.Scopes{Output: d.out})
		if err != nil {
			return "", "validation_error", err.Error()
		}
		if !ok {
			return "", "validation_failed", ""
		}
	}

	var answer any = d.out
	if v.cfg.AnswerKey != "" {
		a, ok := d.out[v.cfg.AnswerKey]
		if !ok {
			return "", "missing_answer", fmt.Sprintf("output has no %q field", v.cfg.AnswerKey)
		}
		answer = a
	}

	normalized, err := json.Marshal(answer)
	if err != nil {
		return "", "unserializable_answer", err.Error()
	}
	return string(normalized), "", ""
}

// standings returns the current leader and the runner-up count.
func standings(tally map[string]*tallyEntry) (lead *tallyEntry, runnerUp int) {
	for _, e := range tally {
		switch {
		case lead == nil || e.count > lead.count:
			if lead != nil {
				runnerUp = lead.count
			}
			lead = e
		case e.count > runnerUp:
			runnerUp = e.count
		}
	}
	return lead, runnerUp
}

// exhausted picks the plurality leader once max_candidates is spent. Ties
// break toward the answer whose tally reached the tied value earliest.
func (v *votingStrategy) exhausted(tally map[string]*tallyEntry) (map[string]any, error) {
	var best *tallyEntry
	for _, e := range tally {
		if best == nil ||
			e.count > best.count ||
			(e.count == best.count && e.lastIdx < best.lastIdx) {
			best = e
		}
	}
	if best == nil {
		return nil, &ports.AgentError{
			Kind: "NoValidSamples",
			Err:  fmt.Errorf("all %d voting samples were red-flagged", v.cfg.MaxCandidates),
		}
	}
	return best.representative, nil
}
