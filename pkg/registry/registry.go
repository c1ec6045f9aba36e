// Package registry provides an in-memory agent resolver for agents
// implemented in-process as Go functions or types.
package registry

import (
	"fmt"
	"sync"

	"github.com/memgrafter/flatagents/pkg/ports"
)

// Registry is a thread-safe, name-keyed collection of agents implementing
// ports.Resolver. Declaration params from the machine document are ignored;
// in-process agents carry their own configuration.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]ports.Agent
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]ports.Agent)}
}

// Register adds or replaces an agent under a name.
func (r *Registry) Register(name string, agent ports.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = agent
}

// RegisterFunc adds a plain function as an agent.
func (r *Registry) RegisterFunc(name string, fn ports.AgentFunc) {
	r.Register(name, fn)
}

// Resolve implements ports.Resolver.
func (r *Registry) Resolve(name string, _ map[string]any) (ports.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered", name)
	}
	return agent, nil
}
