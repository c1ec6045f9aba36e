// Package http exposes machines over a JSON HTTP API: hosts register bound
// machines by name and clients execute runs against them. State lives
// entirely in the request/response cycle; the engine itself stays stateless.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

// Runner is the slice of the flatagents.Machine surface the server needs.
type Runner interface {
	Execute(ctx context.Context, input map[string]any) (*domain.Result, error)
	Definition() *domain.Machine
}

// Server serves a named collection of machines.
type Server struct {
	mu       sync.RWMutex
	machines map[string]Runner
	store    ports.TraceStore
	logger   *slog.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithTraceStore persists every finished run's trace (success or failure).
func WithTraceStore(store ports.TraceStore) ServerOption {
	return func(s *Server) { s.store = store }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server over the given machines.
func NewServer(machines map[string]Runner, opts ...ServerOption) *Server {
	s := &Server{
		machines: machines,
		logger:   slog.New(slog.DiscardHandler),
	}
	if s.machines == nil {
		s.machines = make(map[string]Runner)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces a machine under a name.
func (s *Server) Register(name string, m Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[name] = m
}

// Handler returns the chi router for the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/machines", s.listMachines)
	r.Get("/machines/{name}", s.getMachine)
	r.Post("/machines/{name}/execute", s.executeMachine)
	r.Get("/runs/{id}", s.getRun)
	return r
}

func (s *Server) lookup(name string) (Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[name]
	return m, ok
}

type machineSummary struct {
	Name   string   `json:"name"`
	Entry  string   `json:"entry"`
	States []string `json:"states"`
}

func (s *Server) listMachines(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.machines))
	for name := range s.machines {
		names = append(names, name)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"machines": names})
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := s.lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown machine "+name)
		return
	}
	def := m.Definition()
	writeJSON(w, http.StatusOK, machineSummary{
		Name:   def.Name,
		Entry:  def.Entry,
		States: def.StateOrder,
	})
}

type executeRequest struct {
	Input map[string]any `json:"input"`
}

type executeResponse struct {
	RunID  string         `json:"run_id"`
	Output map[string]any `json:"output,omitempty"`
	Trace  *domain.Trace  `json:"trace,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) executeMachine(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := s.lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "unknown machine "+name)
		return
	}

	var req executeRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
			s.logger.Warn("execute: invalid request body", "machine", name, "err", err)
			return
		}
	}

	result, err := m.Execute(r.Context(), req.Input)
	resp := executeResponse{}
	if result != nil && result.Trace != nil {
		resp.RunID = result.Trace.RunID
		resp.Trace = result.Trace
		if s.store != nil {
			if saveErr := s.store.Save(r.Context(), result.Trace); saveErr != nil {
				s.logger.Error("execute: trace save failed", "machine", name, "err", saveErr)
			}
		}
	}
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = domain.KindOf(err)
		s.logger.Warn("run failed", "machine", name, "kind", resp.ErrorKind, "err", err)
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	resp.Output = result.Output
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "NotFound", "trace persistence is not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	trace, err := s.store.Load(r.Context(), id)
	if errors.Is(err, ports.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "unknown run "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		s.logger.Error("run lookup failed", "run_id", id, "err", err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "error_kind": kind})
}
