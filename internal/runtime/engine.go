// Package runtime drives machine runs: it holds a machine definition with
// its resolved agents and built strategies, and executes the state loop
// (enter state, resolve inputs, dispatch the execution strategy, merge
// outputs, evaluate transitions) until a final state or a fatal error.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memgrafter/flatagents/internal/expr"
	"github.com/memgrafter/flatagents/internal/logging"
	"github.com/memgrafter/flatagents/internal/strategy"
	"github.com/memgrafter/flatagents/internal/template"
	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

// Engine executes runs of one machine definition. It is immutable after
// construction and safe for concurrent runs; each run owns its own context
// map and trace.
type Engine struct {
	machine    *domain.Machine
	agents     map[string]ports.Agent
	strategies map[string]strategy.Strategy
	hooks      domain.Chain
	evaluator  *expr.Evaluator
	templates  *template.Resolver
	logger     *slog.Logger
}

type engineConfig struct {
	hooks     []domain.Hooks
	logger    *slog.Logger
	factories map[string]strategy.Factory
	sleep     func(ctx context.Context, d time.Duration) error
	rand      func() float64
}

// EngineOption configures engine construction.
type EngineOption func(*engineConfig)

// WithHooks appends lifecycle hooks; they run in registration order.
func WithHooks(hooks ...domain.Hooks) EngineOption {
	return func(c *engineConfig) { c.hooks = append(c.hooks, hooks...) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrategy registers a custom execution strategy factory under a tag
// before the machine's specs are validated against the registry.
func WithStrategy(tag string, f strategy.Factory) EngineOption {
	return func(c *engineConfig) {
		if c.factories == nil {
			c.factories = make(map[string]strategy.Factory)
		}
		c.factories[tag] = f
	}
}

// WithSleeper overrides the retry backoff wait. Test seam.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(c *engineConfig) { c.sleep = sleep }
}

// WithRand overrides the jitter randomness source. Test seam.
func WithRand(r func() float64) EngineOption {
	return func(c *engineConfig) { c.rand = r }
}

// NewEngine builds the executor for a machine: it selects the expression
// grammar, builds every state's execution strategy and resolves every
// referenced agent. All configuration problems surface here, before any
// run starts.
func NewEngine(m *domain.Machine, resolver ports.Resolver, opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	grammar, err := expr.ParseGrammar(m.Grammar())
	if err != nil {
		return nil, &domain.ConfigError{Machine: m.Name, Reason: err.Error()}
	}
	evaluator := expr.New(grammar)

	registry := strategy.NewRegistry(strategy.Deps{
		Logger:    cfg.logger,
		Evaluator: evaluator,
		Sleep:     cfg.sleep,
		Rand:      cfg.rand,
	})
	for tag, f := range cfg.factories {
		registry.Register(tag, f)
	}

	e := &Engine{
		machine:    m,
		agents:     make(map[string]ports.Agent),
		strategies: make(map[string]strategy.Strategy),
		hooks:      domain.Chain(cfg.hooks),
		evaluator:  evaluator,
		templates:  template.NewResolver(grammar),
		logger:     cfg.logger.With("machine", m.Name),
	}

	for _, name := range m.StateOrder {
		state := m.States[name]
		if state.Kind != domain.StateKindAgent {
			continue
		}
		s, err := registry.Build(m.ExecutionFor(state))
		if err != nil {
			var cfgErr *domain.ConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Machine = m.Name
				return nil, fmt.Errorf("state %q: %w", name, cfgErr)
			}
			return nil, err
		}
		e.strategies[name] = s

		if _, ok := e.agents[state.Agent]; ok {
			continue
		}
		if resolver == nil {
			return nil, &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf("no agent resolver provided but state %q calls agent %q", name, state.Agent)}
		}
		agent, err := resolver.Resolve(state.Agent, m.Agents[state.Agent])
		if err != nil {
			return nil, &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf("cannot resolve agent %q: %v", state.Agent, err)}
		}
		e.agents[state.Agent] = agent
	}

	return e, nil
}

// Execute runs the machine once with the given input. The returned Result
// always carries the run trace; Output is set only when a final state was
// reached. On failure the error carries the routable kind and the trace
// records everything up to the failure.
func (e *Engine) Execute(ctx context.Context, input map[string]any) (*domain.Result, error) {
	if input == nil {
		input = map[string]any{}
	}
	trace := &domain.Trace{
		RunID:     uuid.NewString(),
		Machine:   e.machine.Name,
		StartedAt: time.Now(),
	}
	logger := e.logger.With("run_id", trace.RunID)
	logger.Debug("run started", "entry", e.machine.Entry)

	runCtx, err := e.seedContext(input)
	if err != nil {
		return e.fail(trace, logger, err)
	}

	current := e.machine.Entry
	maxSteps := e.machine.MaxSteps()
	steps := 0

	for {
		if err := ctx.Err(); err != nil {
			return e.fail(trace, logger, err)
		}
		steps++
		if steps > maxSteps {
			return e.fail(trace, logger, &domain.MaxStepsExceededError{Machine: e.machine.Name, Limit: maxSteps})
		}

		state := e.machine.States[current]
		step := domain.StepTrace{Seq: steps, State: current}
		logger.Debug("entering state", "state", current, "step", steps)

		runCtx, err = e.hooks.OnStateEnter(ctx, current, cloneMap(runCtx))
		if err != nil {
			return e.fail(trace, logger, err)
		}

		if state.Kind == domain.StateKindFinal {
			output, err := e.templates.ResolveMap(state.Output, expr.Scopes{Context: runCtx, Input: input})
			if err != nil {
				return e.fail(trace, logger, err)
			}
			trace.Steps = append(trace.Steps, step)
			trace.Output = output
			trace.FinishedAt = time.Now()
			logger.Debug("run finished", "state", current, "steps", steps)
			return &domain.Result{Output: output, Trace: trace}, nil
		}

		var output any
		if state.Kind == domain.StateKindAgent {
			next, rerouted, err := e.runAgentState(ctx, state, input, runCtx, &step, &output)
			if err != nil {
				trace.Steps = append(trace.Steps, step)
				return e.fail(trace, logger, err)
			}
			if rerouted {
				step.Transition = next
				trace.Steps = append(trace.Steps, step)
				current = next
				continue
			}
		}

		next, err := e.selectTransition(state, expr.Scopes{Context: runCtx, Input: input, Output: output})
		if err != nil {
			trace.Steps = append(trace.Steps, step)
			return e.fail(trace, logger, err)
		}

		candidate, err := e.hooks.OnTransition(ctx, current, next, cloneMap(runCtx))
		if err != nil {
			trace.Steps = append(trace.Steps, step)
			return e.fail(trace, logger, err)
		}
		if _, ok := e.machine.States[candidate]; !ok {
			trace.Steps = append(trace.Steps, step)
			return e.fail(trace, logger, &domain.UnknownStateError{
				State:        candidate,
				ReferencedBy: fmt.Sprintf("transition hook on state %q", current),
			})
		}

		step.Transition = candidate
		trace.Steps = append(trace.Steps, step)
		current = candidate
	}
}

// runAgentState resolves inputs, dispatches the execution strategy, applies
// exit hooks and merges the output batch into the run context (which is
// mutated in place). When the agent fails and an on_error route matches, it
// returns (recoveryState, true, nil); fatal problems return an error.
func (e *Engine) runAgentState(
	ctx context.Context,
	state *domain.State,
	input map[string]any,
	runCtx map[string]any,
	step *domain.StepTrace,
	output *any,
) (string, bool, error) {
	resolvedInput, err := e.templates.ResolveMap(state.Input, expr.Scopes{Context: runCtx, Input: input})
	if err != nil {
		return e.recover(ctx, state, runCtx, step, err)
	}
	step.Input = resolvedInput

	agent := e.agents[state.Agent]
	call := func(ctx context.Context, in map[string]any) (map[string]any, error) {
		return agent.Invoke(ctx, in)
	}

	raw, err := e.strategies[state.Name].Execute(ctx, call, resolvedInput, step)
	if err != nil {
		if ctx.Err() != nil {
			// A cancelled run is a single Cancelled outcome, never routed.
			return "", false, ctx.Err()
		}
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindAgentExecution
		}
		attempts := len(step.Samples)
		if attempts == 0 {
			attempts = 1
		}
		wrapped := &domain.AgentExecutionError{
			State:    state.Name,
			Agent:    state.Agent,
			Kind:     kind,
			Attempts: attempts,
			Err:      err,
		}
		return e.recover(ctx, state, runCtx, step, wrapped)
	}

	out, err := e.hooks.OnStateExit(ctx, state.Name, cloneMap(runCtx), raw)
	if err != nil {
		return "", false, err
	}
	step.Output = out
	*output = out

	if len(state.OutputToContext) > 0 {
		// Every template in the batch sees the context as it was before
		// the batch; updates land only after all keys resolved.
		scopes := expr.Scopes{Context: cloneMap(runCtx), Input: resolvedInput, Output: out}
		batch, err := e.templates.ResolveMap(state.OutputToContext, scopes)
		if err != nil {
			return e.recover(ctx, state, runCtx, step, err)
		}
		for k, v := range batch {
			runCtx[k] = v
		}
	}

	return "", false, nil
}

// recover consults the state's on_error table (exact kind, then "default"),
// then the hook chain. An unhandled error comes back as fatal.
func (e *Engine) recover(
	ctx context.Context,
	state *domain.State,
	runCtx map[string]any,
	step *domain.StepTrace,
	cause error,
) (string, bool, error) {
	kind := domain.KindOf(cause)
	step.Err = cause.Error()
	step.ErrKind = kind
	e.logger.Debug("agent state failed", "state", state.Name, "kind", kind, "err", cause)

	if target, ok := state.OnError[kind]; ok && kind != "" {
		return target, true, nil
	}
	if target, ok := state.OnError["default"]; ok {
		return target, true, nil
	}

	target, err := e.hooks.OnError(ctx, state.Name, cause, cloneMap(runCtx))
	if err != nil {
		return "", false, err
	}
	if target == "" {
		return "", false, cause
	}
	if _, ok := e.machine.States[target]; !ok {
		return "", false, &domain.UnknownStateError{
			State:        target,
			ReferencedBy: fmt.Sprintf("error hook on state %q", state.Name),
		}
	}
	return target, true, nil
}

// selectTransition evaluates transitions in declaration order; the first
// whose condition holds (or that has no condition) wins. A state that
// matches nothing is a configuration error.
func (e *Engine) selectTransition(state *domain.State, scopes expr.Scopes) (string, error) {
	for _, t := range state.Transitions {
		if t.Condition == "" {
			return t.To, nil
		}
		ok, err := e.evaluator.EvaluateBool(t.Condition, scopes)
		if err != nil {
			return "", err
		}
		if ok {
			return t.To, nil
		}
	}
	return "", &domain.ConfigError{
		Machine: e.machine.Name,
		Reason:  fmt.Sprintf("state %q has no matching transition and no default", state.Name),
	}
}

// seedContext resolves the machine's initial-context templates against the
// caller input.
func (e *Engine) seedContext(input map[string]any) (map[string]any, error) {
	runCtx := make(map[string]any, len(e.machine.InitialContext))
	for k, tmpl := range e.machine.InitialContext {
		v, err := e.templates.Resolve(tmpl, expr.Scopes{Input: input})
		if err != nil {
			return nil, err
		}
		runCtx[k] = v
	}
	return runCtx, nil
}

func (e *Engine) fail(trace *domain.Trace, logger *slog.Logger, err error) (*domain.Result, error) {
	trace.FinishedAt = time.Now()
	trace.Err = err.Error()
	trace.ErrKind = domain.KindOf(err)
	logger.Debug("run failed", "kind", trace.ErrKind, "err", err)
	return &domain.Result{Trace: trace}, err
}

// cloneMap shallow-copies a context map so hooks receive snapshots, never
// shared mutable references.
func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
