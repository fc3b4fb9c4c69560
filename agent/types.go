// Package agent provides persona agents driven by an llm.Provider.
package agent

import (
	"encoding/json"
	"time"

	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/model"
)

// Decision represents a decision made by the agent's LLM.
type Decision struct {
	Thought     string  `json:"thought"`
	Action      *Action `json:"action,omitempty"`
	IsFinal     bool    `json:"is_final"`
	FinalAnswer *string `json:"final_answer,omitempty"`
}

// UnmarshalJSON accepts final_answer as either a string or any JSON value.
// Non-string values are kept as their JSON text.
func (d *Decision) UnmarshalJSON(data []byte) error {
	type decisionAlias Decision
	aux := &struct {
		FinalAnswer json.RawMessage `json:"final_answer,omitempty"`
		*decisionAlias
	}{
		decisionAlias: (*decisionAlias)(d),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.FinalAnswer) == 0 || string(aux.FinalAnswer) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.FinalAnswer, &s); err == nil {
		d.FinalAnswer = &s
		return nil
	}

	var v any
	if err := json.Unmarshal(aux.FinalAnswer, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			s := string(pretty)
			d.FinalAnswer = &s
		}
	}
	return nil
}

// Action represents an action to execute a tool.
type Action struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Step is an alias for model.Step for agent reasoning steps.
type Step = model.Step

// ToolCall is an alias for model.ToolCall for tool call metadata.
type ToolCall = model.ToolCall

// Metadata is what a run cost and which tools it called.
type Metadata struct {
	ExecutionTimeMs uint64          `json:"execution_time_ms"`
	AgentName       string          `json:"agent_name,omitempty"`
	ToolCalls       []ToolCall      `json:"tool_calls,omitempty"`
	TokenUsage      *llm.TokenUsage `json:"token_usage,omitempty"`
	LLMCalls        int             `json:"llm_calls"`
}

// tally accumulates Metadata over one run.
type tally struct {
	agent     string
	start     time.Time
	usage     llm.TokenUsage
	llmCalls  int
	toolCalls []ToolCall
}

func newTally(agent string) *tally {
	return &tally{agent: agent, start: time.Now()}
}

func (t *tally) record(usage *llm.TokenUsage) {
	t.llmCalls++
	t.usage.Add(usage)
}

func (t *tally) meta() Metadata {
	usage := t.usage
	return Metadata{
		ExecutionTimeMs: elapsedMs(t.start),
		AgentName:       t.agent,
		ToolCalls:       t.toolCalls,
		TokenUsage:      &usage,
		LLMCalls:        t.llmCalls,
	}
}

// ResponseType is how a run ended.
type ResponseType int

const (
	ResponseSuccess ResponseType = iota
	ResponseFailure
	ResponseTimeout
)

const maxIterationsReached = "Max iterations reached"

func (t ResponseType) String() string {
	switch t {
	case ResponseSuccess:
		return "success"
	case ResponseFailure:
		return "failure"
	case ResponseTimeout:
		return "timeout"
	}
	return "unknown"
}

// Response is the outcome of one run. Exactly one of Result, Error and
// PartialResult is set, matching Type.
type Response struct {
	Type          ResponseType
	Result        string
	Error         string
	PartialResult string
	Steps         []Step
	Metadata      Metadata
}

func NewSuccessResponse(result string, steps []Step, meta Metadata) Response {
	return Response{Type: ResponseSuccess, Result: result, Steps: steps, Metadata: meta}
}

func NewFailureResponse(err string, steps []Step, meta Metadata) Response {
	return Response{Type: ResponseFailure, Error: err, Steps: steps, Metadata: meta}
}

func NewTimeoutResponse(partial string, steps []Step, meta Metadata) Response {
	return Response{Type: ResponseTimeout, PartialResult: partial, Steps: steps, Metadata: meta}
}

// ResultText is whichever of Result, Error or PartialResult applies.
func (r Response) ResultText() string {
	switch r.Type {
	case ResponseSuccess:
		return r.Result
	case ResponseFailure:
		return r.Error
	case ResponseTimeout:
		return r.PartialResult
	}
	return ""
}

func (r Response) IsSuccess() bool {
	return r.Type == ResponseSuccess
}
