package flatagents

import (
	"context"
	"log/slog"
	"time"

	"github.com/memgrafter/flatagents/internal/logging"
	"github.com/memgrafter/flatagents/internal/runtime"
	"github.com/memgrafter/flatagents/internal/strategy"
	"github.com/memgrafter/flatagents/pkg/config"
	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
	"github.com/memgrafter/flatagents/pkg/registry"
)

// Machine is the high-level entry point: an immutable definition bound to
// its agents, hooks and strategies. One Machine serves any number of
// concurrent Execute calls; runs share nothing but the definition.
type Machine struct {
	def    *domain.Machine
	engine *runtime.Engine
	Name   string
}

type machineConfig struct {
	resolver   ports.Resolver
	inline     *registry.Registry
	logger     *slog.Logger
	engineOpts []runtime.EngineOption
}

// Option configures machine construction.
type Option func(*machineConfig)

// WithResolver injects the agent-loading collaborator for all of the
// machine's declared agents.
func WithResolver(r ports.Resolver) Option {
	return func(c *machineConfig) { c.resolver = r }
}

// WithAgent binds a single in-process agent by name. Agents bound this way
// take precedence over the resolver.
func WithAgent(name string, agent ports.Agent) Option {
	return func(c *machineConfig) {
		if c.inline == nil {
			c.inline = registry.New()
		}
		c.inline.Register(name, agent)
	}
}

// WithHooks registers lifecycle hooks; they run in registration order.
func WithHooks(hooks ...domain.Hooks) Option {
	return func(c *machineConfig) {
		c.engineOpts = append(c.engineOpts, runtime.WithHooks(hooks...))
	}
}

// WithLogger sets a structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *machineConfig) { c.logger = logger }
}

// WithStrategy registers a custom execution strategy before the machine's
// execution specs are validated.
func WithStrategy(tag string, f strategy.Factory) Option {
	return func(c *machineConfig) {
		c.engineOpts = append(c.engineOpts, runtime.WithStrategy(tag, f))
	}
}

// WithSleeper overrides the retry backoff wait. Intended for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *machineConfig) {
		c.engineOpts = append(c.engineOpts, runtime.WithSleeper(sleep))
	}
}

// WithRand overrides the jitter randomness source. Intended for tests.
func WithRand(r func() float64) Option {
	return func(c *machineConfig) {
		c.engineOpts = append(c.engineOpts, runtime.WithRand(r))
	}
}

// New loads a machine definition from a YAML file and binds it.
func New(configPath string, opts ...Option) (*Machine, error) {
	def, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewFromDefinition(def, opts...)
}

// NewFromDefinition binds a definition built in Go (or parsed elsewhere).
// The definition is validated, its strategies are built and its agents are
// resolved before the first run, so configuration problems surface here.
func NewFromDefinition(def *domain.Machine, opts ...Option) (*Machine, error) {
	if err := config.Validate(def); err != nil {
		return nil, err
	}

	cfg := machineConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	resolver := cfg.resolver
	if cfg.inline != nil {
		inline := cfg.inline
		fallback := resolver
		resolver = ports.ResolverFunc(func(name string, params map[string]any) (ports.Agent, error) {
			agent, err := inline.Resolve(name, params)
			if err == nil {
				return agent, nil
			}
			if fallback != nil {
				return fallback.Resolve(name, params)
			}
			return nil, err
		})
	}

	engineOpts := append([]runtime.EngineOption{runtime.WithLogger(cfg.logger)}, cfg.engineOpts...)
	engine, err := runtime.NewEngine(def, resolver, engineOpts...)
	if err != nil {
		return nil, err
	}

	return &Machine{def: def, engine: engine, Name: def.Name}, nil
}

// Execute runs the machine once. The Result always carries the run trace;
// Output is set only when a final state was reached. A non-nil error means
// the run terminally failed (its kind is available via domain.KindOf).
func (m *Machine) Execute(ctx context.Context, input map[string]any) (*domain.Result, error) {
	return m.engine.Execute(ctx, input)
}

// Definition returns the underlying machine definition. Treat it as
// read-only; it is shared by all in-flight runs.
func (m *Machine) Definition() *domain.Machine {
	return m.def
}
