package process_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgrafter/flatagents/pkg/adapters/process"
	"github.com/memgrafter/flatagents/pkg/ports"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests shell out to /bin/sh")
	}
}

func TestAgent_RoundTripsJSON(t *testing.T) {
	requireUnix(t)
	// cat echoes stdin, so input and output are the same JSON object.
	agent := process.NewAgent("cat", nil)

	out, err := agent.Invoke(context.Background(), map[string]any{"word": "Hi", "n": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"word": "Hi", "n": float64(3)}, out)
}

func TestAgent_NonZeroExitIsProcessError(t *testing.T) {
	requireUnix(t)
	agent := process.NewAgent("/bin/sh", []string{"-c", "echo doomed >&2; exit 3"})

	_, err := agent.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	var agentErr *ports.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, process.KindProcessError, agentErr.Kind)
	assert.Contains(t, err.Error(), "doomed")
}

func TestAgent_NonJSONOutputIsBadOutput(t *testing.T) {
	requireUnix(t)
	agent := process.NewAgent("/bin/sh", []string{"-c", "echo not json"})

	_, err := agent.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	var agentErr *ports.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, process.KindBadOutput, agentErr.Kind)
}

func TestAgent_EnvIsPassedThrough(t *testing.T) {
	requireUnix(t)
	agent := process.NewAgent("/bin/sh",
		[]string{"-c", `printf '{"greeting": "%s"}' "$GREETING"`},
		process.WithEnv("GREETING=hello"),
	)

	out, err := agent.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello"}, out)
}

func TestAgent_CancellationSurfacesContextError(t *testing.T) {
	requireUnix(t)
	agent := process.NewAgent("/bin/sh", []string{"-c", "sleep 10"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := agent.Invoke(ctx, map[string]any{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolver_BuildsAgentFromDeclaration(t *testing.T) {
	requireUnix(t)
	r := process.NewResolver()

	agent, err := r.Resolve("echoer", map[string]any{
		"command": "cat",
	})
	require.NoError(t, err)

	out, err := agent.Invoke(context.Background(), map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestResolver_RejectsBadDeclarations(t *testing.T) {
	r := process.NewResolver()

	_, err := r.Resolve("nocmd", map[string]any{"args": []any{"-c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")

	// Unknown declaration keys are errors, not silently dropped.
	_, err = r.Resolve("typo", map[string]any{"command": "cat", "comand": "x"})
	assert.Error(t, err)
}
