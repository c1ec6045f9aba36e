package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds as used by on_error routing tables and the HTTP adapter.
const (
	KindConfig           = "ConfigError"
	KindExpression       = "ExpressionError"
	KindTemplate         = "TemplateError"
	KindAgentExecution   = "AgentError"
	KindMaxStepsExceeded = "MaxStepsExceededError"
	KindUnknownState     = "UnknownStateError"
	KindCancelled        = "Cancelled"
)

// ConfigError reports a malformed machine definition. It is detected at
// load time and is always fatal, never retried.
type ConfigError struct {
	Machine string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Machine == "" {
		return fmt.Sprintf("invalid machine: %s", e.Reason)
	}
	return fmt.Sprintf("invalid machine %q: %s", e.Machine, e.Reason)
}

// ExpressionError reports a malformed or mistyped condition expression.
type ExpressionError struct {
	Expr   string
	Reason string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Reason)
}

// ErrorKind implements kind-based routing.
func (e *ExpressionError) ErrorKind() string { return KindExpression }

// TemplateError reports an unresolvable or malformed template.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

// ErrorKind implements kind-based routing.
func (e *TemplateError) ErrorKind() string { return KindTemplate }

// AgentExecutionError wraps an agent failure after the execution strategy
// has run its course (e.g. retries exhausted). Kind carries the underlying
// error kind so on_error tables can match it.
type AgentExecutionError struct {
	State    string
	Agent    string
	Kind     string
	Attempts int
	Err      error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %q failed in state %q (%s, %d attempt(s)): %v",
		e.Agent, e.State, e.Kind, e.Attempts, e.Err)
}

func (e *AgentExecutionError) Unwrap() error { return e.Err }

// ErrorKind implements kind-based routing.
func (e *AgentExecutionError) ErrorKind() string { return e.Kind }

// MaxStepsExceededError signals a likely non-terminating machine. Always fatal.
type MaxStepsExceededError struct {
	Machine string
	Limit   int
}

func (e *MaxStepsExceededError) Error() string {
	return fmt.Sprintf("machine %q exceeded the step budget of %d", e.Machine, e.Limit)
}

// ErrorKind implements kind-based routing.
func (e *MaxStepsExceededError) ErrorKind() string { return KindMaxStepsExceeded }

// UnknownStateError reports a hook or transition naming a state that is
// absent from the definition. Always fatal, never a silent fallback.
type UnknownStateError struct {
	State        string
	ReferencedBy string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state %q referenced by %s", e.State, e.ReferencedBy)
}

// ErrorKind implements kind-based routing.
func (e *UnknownStateError) ErrorKind() string { return KindUnknownState }

// kinder is implemented by errors that carry a routable kind.
type kinder interface{ ErrorKind() string }

// KindOf extracts the routable kind from an error. Agent implementations
// tag failures by implementing ErrorKind() (see ports.AgentError); engine
// errors carry their taxonomy kind. Untagged errors map to KindAgentExecution
// when they cross the agent boundary and to "" otherwise.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	var k kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return ""
}
