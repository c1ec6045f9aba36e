package ports

import (
	"context"
	"fmt"
)

// Agent is the capability contract the engine requires from the external
// agent-loading collaborator: given structured input, produce structured
// output or fail. Implementations must honor context cancellation; a call
// may be one of several concurrent draws inside a parallel or voting step.
type Agent interface {
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)
}

// AgentFunc adapts a plain function to the Agent interface.
type AgentFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Invoke implements Agent.
func (f AgentFunc) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

// AgentError tags an agent failure with a kind usable by on_error routing
// tables (e.g. "RateLimitError"). Agents return untagged errors at the cost
// of only matching the "default" route.
type AgentError struct {
	Kind string
	Err  error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// ErrorKind implements kind-based routing (see domain.KindOf).
func (e *AgentError) ErrorKind() string { return e.Kind }

// Resolver maps the agent names a machine declares to Agent instances.
// Resolution happens at machine construction so missing agents surface as
// configuration errors, not mid-run failures.
type Resolver interface {
	// Resolve returns the agent registered under name, or an error when the
	// name is unknown. The params are the opaque declaration from the
	// machine document; resolver implementations interpret them as they
	// see fit (the engine never does).
	Resolve(name string, params map[string]any) (Agent, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(name string, params map[string]any) (Agent, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(name string, params map[string]any) (Agent, error) {
	return f(name, params)
}
