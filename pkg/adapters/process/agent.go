// Package process runs external commands as agents: resolved input is
// written to the child's stdin as JSON and the child's stdout is parsed as
// the JSON output object. Only commands declared in the machine document
// and accepted by the Resolver can run.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/memgrafter/flatagents/pkg/ports"
)

// Error kinds the adapter tags its failures with, matchable by on_error
// routing tables.
const (
	KindProcessError = "ProcessError"
	KindBadOutput    = "BadOutput"
)

// Agent executes a fixed command per invocation.
type Agent struct {
	command string
	args    []string
	dir     string
	env     []string
}

var _ ports.Agent = (*Agent)(nil)

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithDir sets the working directory for the command.
func WithDir(dir string) AgentOption {
	return func(a *Agent) { a.dir = dir }
}

// WithEnv appends KEY=VALUE pairs to the command environment.
func WithEnv(env ...string) AgentOption {
	return func(a *Agent) { a.env = append(a.env, env...) }
}

// NewAgent creates a process-backed agent.
func NewAgent(command string, args []string, opts ...AgentOption) *Agent {
	a := &Agent{command: command, args: args}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke implements ports.Agent. The command must exit zero and print a
// JSON object; anything else is a tagged AgentError.
func (a *Agent) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, &ports.AgentError{Kind: KindProcessError, Err: fmt.Errorf("encode input: %w", err)}
	}

	cmd := exec.CommandContext(ctx, a.command, a.args...)
	cmd.Dir = a.dir
	if len(a.env) > 0 {
		cmd.Env = append(cmd.Environ(), a.env...)
	}
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ports.AgentError{
			Kind: KindProcessError,
			Err:  fmt.Errorf("%s: %w (stderr: %s)", a.command, err, strings.TrimSpace(stderr.String())),
		}
	}

	var output map[string]any
	trimmed := strings.TrimSpace(stdout.String())
	if err := json.Unmarshal([]byte(trimmed), &output); err != nil {
		return nil, &ports.AgentError{
			Kind: KindBadOutput,
			Err:  fmt.Errorf("%s produced non-JSON output: %w", a.command, err),
		}
	}
	return output, nil
}

// declaration is the shape the adapter expects in a machine document's
// agents section: {command: ..., args: [...], dir: ..., env: [...]}.
type declaration struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Dir     string   `mapstructure:"dir"`
	Env     []string `mapstructure:"env"`
}

// Resolver builds process agents from the opaque declarations in a machine
// document. It implements ports.Resolver.
type Resolver struct{}

var _ ports.Resolver = Resolver{}

// NewResolver creates the resolver.
func NewResolver() Resolver { return Resolver{} }

// Resolve implements ports.Resolver.
func (Resolver) Resolve(name string, params map[string]any) (ports.Agent, error) {
	var decl declaration
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &decl,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}
	if decl.Command == "" {
		return nil, fmt.Errorf("agent %q declares no command", name)
	}

	var opts []AgentOption
	if decl.Dir != "" {
		opts = append(opts, WithDir(decl.Dir))
	}
	if len(decl.Env) > 0 {
		opts = append(opts, WithEnv(decl.Env...))
	}
	return NewAgent(decl.Command, decl.Args, opts...), nil
}
