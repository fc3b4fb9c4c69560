package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/team"
	"github.com/richinex/inkwell/workflow"
)

const (
	tracerName = "github.com/richinex/inkwell/server"

	// DefaultPort is where an OS listens unless configured otherwise.
	DefaultPort = 7777

	maxBodyBytes = 1 << 20
)

// Server routes requests to the components of one OS.
type Server struct {
	os        OS
	metrics   *observability.Metrics
	agents    map[string]*agent.Agent
	teams     map[string]*team.Team
	workflows map[string]*workflow.Workflow
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m on /metrics and records requests into it.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New indexes the components of o by slug. Duplicate slugs are rejected.
func New(o OS, opts ...Option) (*Server, error) {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10
	}
	s := &Server{
		os:        o,
		agents:    make(map[string]*agent.Agent),
		teams:     make(map[string]*team.Team),
		workflows: make(map[string]*workflow.Workflow),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, a := range o.Agents {
		if err := register(s.agents, a.Name(), a); err != nil {
			return nil, err
		}
	}
	for _, t := range o.Teams {
		if err := register(s.teams, t.Name(), t); err != nil {
			return nil, err
		}
	}
	for _, w := range o.Workflows {
		if err := register(s.workflows, w.Name, w); err != nil {
			return nil, err
		}
	}
	s.router = s.routes()
	return s, nil
}

func register[T any](m map[string]T, name string, v T) error {
	id := Slug(name)
	if id == "" {
		return fmt.Errorf("component %q has no usable id", name)
	}
	if _, dup := m[id]; dup {
		return fmt.Errorf("duplicate component id %q", id)
	}
	m[id] = v
	return nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ID is the OS id.
func (s *Server) ID() string {
	return s.os.id()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observe(s.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/config", s.handleConfig)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/agents", s.handleListAgents)
	r.Post("/agents/{id}/runs", s.handleAgentRun)
	r.Get("/teams", s.handleListTeams)
	r.Post("/teams/{id}/runs", s.handleTeamRun)
	r.Get("/workflows", s.handleListWorkflows)
	r.Post("/workflows/{id}/runs", s.handleWorkflowRun)
	r.Get("/workflows/{id}/sessions", s.handleWorkflowSessions)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

type agentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	Tools       int    `json:"tools"`
}

type teamInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
}

type workflowInfo struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type interfaceInfo struct {
	Type  string `json:"type"`
	Route string `json:"route"`
}

type configResponse struct {
	OSID        string          `json:"os_id"`
	Description string          `json:"description,omitempty"`
	Agents      []agentInfo     `json:"agents"`
	Teams       []teamInfo      `json:"teams"`
	Workflows   []workflowInfo  `json:"workflows"`
	Interfaces  []interfaceInfo `json:"interfaces"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := configResponse{
		OSID:        s.os.id(),
		Description: s.os.Description,
		Agents:      s.agentInfos(),
		Teams:       s.teamInfos(),
		Workflows:   s.workflowInfos(),
		Interfaces:  []interfaceInfo{},
	}
	if s.os.A2A {
		resp.Interfaces = append(resp.Interfaces, interfaceInfo{Type: "a2a", Route: "/a2a"})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agentInfos())
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.teamInfos())
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workflowInfos())
}

func (s *Server) agentInfos() []agentInfo {
	out := make([]agentInfo, 0, len(s.agents))
	for _, id := range sortedKeys(s.agents) {
		a := s.agents[id]
		info := agentInfo{ID: id, Name: a.Name(), Description: a.Description(), Tools: len(a.Config().Tools)}
		if p := a.Provider(); p != nil {
			info.Provider, info.Model = p.Name(), p.Model()
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) teamInfos() []teamInfo {
	out := make([]teamInfo, 0, len(s.teams))
	for _, id := range sortedKeys(s.teams) {
		t := s.teams[id]
		out = append(out, teamInfo{ID: id, Name: t.Name(), Description: t.Description(), Members: t.MemberNames()})
	}
	return out
}

func (s *Server) workflowInfos() []workflowInfo {
	out := make([]workflowInfo, 0, len(s.workflows))
	for _, id := range sortedKeys(s.workflows) {
		wf := s.workflows[id]
		out = append(out, workflowInfo{ID: id, Name: wf.Name, Description: wf.Description, InputSchema: wf.InputSchema})
	}
	return out
}

type messageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type agentRunResponse struct {
	Agent     string         `json:"agent"`
	Status    string         `json:"status"`
	Content   string         `json:"content"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  agent.Metadata `json:"metadata"`
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agents[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", chi.URLParam(r, "id")))
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var resp agent.Response
	if req.SessionID != "" && s.os.Conversations != nil {
		var err error
		resp, err = a.ExecuteInSession(r.Context(), s.os.Conversations, req.SessionID, req.Message, s.os.MaxIterations)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		resp = a.Execute(r.Context(), req.Message, s.os.MaxIterations)
	}

	writeJSON(w, http.StatusOK, agentRunResponse{
		Agent:     a.Name(),
		Status:    resp.Type.String(),
		Content:   resp.ResultText(),
		SessionID: req.SessionID,
		Metadata:  resp.Metadata,
	})
}

type teamRunResponse struct {
	Team            string                `json:"team"`
	Status          string                `json:"status"`
	Content         string                `json:"content"`
	MemberResponses []team.MemberResponse `json:"member_responses,omitempty"`
	Metadata        team.Metadata         `json:"metadata"`
}

func (s *Server) handleTeamRun(w http.ResponseWriter, r *http.Request) {
	t, ok := s.teams[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("team %q not found", chi.URLParam(r, "id")))
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := t.Run(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, teamRunResponse{
		Team:            t.Name(),
		Status:          resp.Type.String(),
		Content:         resp.ResultText(),
		MemberResponses: resp.MemberResponses,
		Metadata:        resp.Metadata,
	})
}

type workflowRunRequest struct {
	Input     json.RawMessage `json:"input"`
	SessionID string          `json:"session_id,omitempty"`
}

func (s *Server) handleWorkflowRun(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflows[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("workflow %q not found", chi.URLParam(r, "id")))
		return
	}
	var req workflowRunRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := wf.Run(r.Context(), req.SessionID, req.Input)
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		logger := logging.Component("server")
		logger.Error().Err(err).Str("workflow", wf.Name).Str("session_id", result.SessionID).Msg("workflow run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleWorkflowSessions(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflows[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("workflow %q not found", chi.URLParam(r, "id")))
		return
	}
	ids, err := wf.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// decode reads a JSON body into v. An empty body leaves v zero.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.Component("server")
		logger.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
