package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/memgrafter/flatagents/pkg/adapters/http"
	"github.com/memgrafter/flatagents/pkg/adapters/memory"
	"github.com/memgrafter/flatagents/pkg/domain"
)

// fakeRunner implements httpadapter.Runner without a real engine.
type fakeRunner struct {
	def    *domain.Machine
	result *domain.Result
	err    error
}

func (f *fakeRunner) Execute(context.Context, map[string]any) (*domain.Result, error) {
	return f.result, f.err
}

func (f *fakeRunner) Definition() *domain.Machine { return f.def }

func okRunner() *fakeRunner {
	return &fakeRunner{
		def: &domain.Machine{
			Name:       "wordbuilder",
			Entry:      "start",
			StateOrder: []string{"start", "build_char", "done"},
		},
		result: &domain.Result{
			Output: map[string]any{"result": "Hi"},
			Trace:  &domain.Trace{RunID: "run-1", Machine: "wordbuilder"},
		},
	}
}

func doJSON(t *testing.T, handler nethttp.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestServer_ListAndGetMachines(t *testing.T) {
	server := httpadapter.NewServer(map[string]httpadapter.Runner{"wordbuilder": okRunner()})
	handler := server.Handler()

	rec, body := doJSON(t, handler, nethttp.MethodGet, "/machines", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, []any{"wordbuilder"}, body["machines"])

	rec, body = doJSON(t, handler, nethttp.MethodGet, "/machines/wordbuilder", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "wordbuilder", body["name"])
	assert.Equal(t, "start", body["entry"])
	assert.Equal(t, []any{"start", "build_char", "done"}, body["states"])

	rec, body = doJSON(t, handler, nethttp.MethodGet, "/machines/ghost", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", body["error_kind"])
}

func TestServer_ExecuteSuccess(t *testing.T) {
	server := httpadapter.NewServer(map[string]httpadapter.Runner{"wordbuilder": okRunner()})

	rec, body := doJSON(t, server.Handler(), nethttp.MethodPost, "/machines/wordbuilder/execute",
		map[string]any{"input": map[string]any{"word": "Hi"}})

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, map[string]any{"result": "Hi"}, body["output"])
	assert.NotNil(t, body["trace"])
}

func TestServer_ExecuteRunFailure(t *testing.T) {
	runner := okRunner()
	runner.err = &domain.MaxStepsExceededError{Machine: "wordbuilder", Limit: 20}
	runner.result = &domain.Result{
		Trace: &domain.Trace{RunID: "run-2", Machine: "wordbuilder", ErrKind: domain.KindMaxStepsExceeded},
	}
	server := httpadapter.NewServer(map[string]httpadapter.Runner{"wordbuilder": runner})

	rec, body := doJSON(t, server.Handler(), nethttp.MethodPost, "/machines/wordbuilder/execute", map[string]any{})

	assert.Equal(t, nethttp.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "run-2", body["run_id"])
	assert.Equal(t, domain.KindMaxStepsExceeded, body["error_kind"])
	assert.NotEmpty(t, body["error"])
	assert.Nil(t, body["output"])
}

func TestServer_ExecuteBadBody(t *testing.T) {
	server := httpadapter.NewServer(map[string]httpadapter.Runner{"wordbuilder": okRunner()})

	req := httptest.NewRequest(nethttp.MethodPost, "/machines/wordbuilder/execute", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestServer_TraceStoreRoundTrip(t *testing.T) {
	store := memory.NewStore()
	server := httpadapter.NewServer(
		map[string]httpadapter.Runner{"wordbuilder": okRunner()},
		httpadapter.WithTraceStore(store),
	)
	handler := server.Handler()

	rec, _ := doJSON(t, handler, nethttp.MethodPost, "/machines/wordbuilder/execute", map[string]any{})
	require.Equal(t, nethttp.StatusOK, rec.Code)

	rec, body := doJSON(t, handler, nethttp.MethodGet, "/runs/run-1", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "wordbuilder", body["machine"])

	rec, body = doJSON(t, handler, nethttp.MethodGet, "/runs/ghost", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", body["error_kind"])
}

func TestServer_RunsWithoutStore(t *testing.T) {
	server := httpadapter.NewServer(map[string]httpadapter.Runner{"wordbuilder": okRunner()})

	rec, body := doJSON(t, server.Handler(), nethttp.MethodGet, "/runs/run-1", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "not enabled")
}

func TestServer_RegisterAfterConstruction(t *testing.T) {
	server := httpadapter.NewServer(nil)
	server.Register("late", okRunner())

	rec, body := doJSON(t, server.Handler(), nethttp.MethodGet, "/machines", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, []any{"late"}, body["machines"])
}
