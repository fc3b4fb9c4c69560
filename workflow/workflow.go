// Package workflow runs named step sequences against a persisted session.
//
// A run loads the session (or starts one), hands its State to each step in
// order, and saves the session afterwards whether or not a step failed.
// State is never shared between runs except through the store.
//
// Information Hiding:
// - Session load/create/save checkpoints
// - Per-session serialization of concurrent runs
// - Run identifiers
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/session"
)

const tracerName = "github.com/richinex/inkwell/workflow"

// StepInput is what a step receives.
type StepInput struct {
	// Input is the run input as sent by the caller.
	Input json.RawMessage
	// Previous is the output of the step before, empty for the first step.
	Previous string
}

// StepFunc runs one step. It may read and mutate state.
type StepFunc func(ctx context.Context, state *session.State, in StepInput) (string, error)

// Step is a named step.
type Step struct {
	Name string
	Run  StepFunc
}

// Workflow is a named sequence of steps over a session store.
type Workflow struct {
	Name        string
	Description string
	// InputSchema is the JSON schema of Input, published on the server.
	InputSchema json.RawMessage
	Steps       []Step

	store session.Store
	locks *keyedMutex
}

// New creates a workflow persisting sessions in store.
func New(name, description string, store session.Store, steps ...Step) *Workflow {
	return &Workflow{
		Name:        name,
		Description: description,
		Steps:       steps,
		store:       store,
		locks:       newKeyedMutex(),
	}
}

// WithInputSchema sets the published input schema.
func (w *Workflow) WithInputSchema(schema json.RawMessage) *Workflow {
	w.InputSchema = schema
	return w
}

// Store returns the session store.
func (w *Workflow) Store() session.Store {
	return w.store
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	Workflow  string `json:"workflow"`
	Content   string `json:"content"`
	// Step is the last step that ran.
	Step       string    `json:"step,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Run executes the steps for sessionID. An empty sessionID starts a new
// session. Step errors and store errors are returned; the session is saved
// in both the success and the step-error case.
func (w *Workflow) Run(ctx context.Context, sessionID string, input json.RawMessage) (RunResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	result := RunResult{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		Workflow:  w.Name,
		StartedAt: time.Now().UTC(),
	}

	logger := logging.Component("workflow")
	ctx, span := observability.Tracer(tracerName).Start(ctx, "workflow.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.name", w.Name),
		attribute.String("workflow.session_id", sessionID),
		attribute.String("workflow.run_id", result.RunID),
	)

	unlock := w.locks.lock(sessionID)
	defer unlock()

	sess, err := w.load(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	var out string
	var stepErr error
	for _, step := range w.Steps {
		result.Step = step.Name
		logger.Debug().Str("workflow", w.Name).Str("step", step.Name).Str("session_id", sessionID).Msg("running step")
		out, stepErr = step.Run(ctx, sess.State, StepInput{Input: input, Previous: out})
		if stepErr != nil {
			stepErr = fmt.Errorf("step %s: %w", step.Name, stepErr)
			break
		}
	}
	result.Content = out
	result.DurationMs = time.Since(result.StartedAt).Milliseconds()

	sess.UpdatedAt = time.Now().UTC()
	if err := w.store.Save(ctx, sess); err != nil {
		err = fmt.Errorf("save session %s: %w", sessionID, err)
		span.SetStatus(codes.Error, err.Error())
		return result, errors.Join(stepErr, err)
	}

	if stepErr != nil {
		span.SetStatus(codes.Error, stepErr.Error())
		return result, stepErr
	}
	logger.Info().Str("workflow", w.Name).Str("session_id", sessionID).Int64("ms", result.DurationMs).Msg("workflow run finished")
	return result, nil
}

// Session returns the stored session.
func (w *Workflow) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return w.store.Load(ctx, sessionID)
}

// Sessions lists the session ids recorded for this workflow.
func (w *Workflow) Sessions(ctx context.Context) ([]string, error) {
	return w.store.List(ctx, w.Name)
}

func (w *Workflow) load(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := w.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return session.New(sessionID, w.Name), nil
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.State == nil {
		sess.State = session.NewState()
	}
	if sess.WorkflowName == "" {
		sess.WorkflowName = w.Name
	}
	return sess, nil
}

// keyedMutex serializes runs that share a session id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
