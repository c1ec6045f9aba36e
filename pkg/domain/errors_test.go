package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type taggedErr struct{ kind string }

func (e *taggedErr) Error() string     { return e.kind }
func (e *taggedErr) ErrorKind() string { return e.kind }

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"expression", &ExpressionError{Expr: "x", Reason: "bad"}, KindExpression},
		{"template", &TemplateError{Template: "{{ x }}", Reason: "bad"}, KindTemplate},
		{"max steps", &MaxStepsExceededError{Machine: "m", Limit: 5}, KindMaxStepsExceeded},
		{"unknown state", &UnknownStateError{State: "x", ReferencedBy: "hook"}, KindUnknownState},
		{"cancelled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"wrapped cancelled", fmt.Errorf("run: %w", context.Canceled), KindCancelled},
		{"tagged", &taggedErr{kind: "RateLimitError"}, "RateLimitError"},
		{"wrapped tagged", fmt.Errorf("outer: %w", &taggedErr{kind: "RateLimitError"}), "RateLimitError"},
		{"untagged", errors.New("plain"), ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), tc.name)
	}
}

func TestAgentExecutionError(t *testing.T) {
	cause := &taggedErr{kind: "RateLimitError"}
	err := &AgentExecutionError{
		State:    "work",
		Agent:    "llm",
		Kind:     "RateLimitError",
		Attempts: 3,
		Err:      cause,
	}

	assert.Equal(t, "RateLimitError", err.ErrorKind())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `agent "llm"`)
	assert.Contains(t, err.Error(), "3 attempt(s)")
}

func TestConfigError_MessageShapes(t *testing.T) {
	assert.Equal(t, "invalid machine: bad", (&ConfigError{Reason: "bad"}).Error())
	assert.Equal(t, `invalid machine "m": bad`, (&ConfigError{Machine: "m", Reason: "bad"}).Error())
}
