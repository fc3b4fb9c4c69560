// Package team coordinates a group of member agents under one coordinator model.
//
// Types used by the coordinator loop and its callers.
package team

import (
	"context"
	"encoding/json"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/model"
)

// Member is anything the coordinator can delegate a task to.
// *agent.Agent satisfies it.
type Member interface {
	Name() string
	Description() string
	ExecuteWithContext(ctx context.Context, task string, contextData json.RawMessage, maxIterations int) agent.Response
}

// Step is an alias for model.Step for coordinator steps.
type Step = model.Step

// MemberResponse is an alias for model.MemberResponse.
type MemberResponse = model.MemberResponse

// TokenStats tracks token usage across a team run, members included.
type TokenStats struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
	LLMCalls         int    `json:"llm_calls"`
}

// AddUsage adds token usage from an LLM call.
func (ts *TokenStats) AddUsage(usage *llm.TokenUsage) {
	if usage == nil {
		return
	}
	ts.PromptTokens += usage.PromptTokens
	ts.CompletionTokens += usage.CompletionTokens
	ts.TotalTokens += usage.TotalTokens
}

// Metadata contains metadata about a team run.
type Metadata struct {
	ExecutionTimeMs uint64     `json:"execution_time_ms"`
	TeamName        string     `json:"team_name"`
	TokenStats      TokenStats `json:"token_stats"`
	Delegations     int        `json:"delegations"`
}

// ResponseType reuses the agent response kinds.
type ResponseType = agent.ResponseType

// Response is the consolidated result of a team run.
type Response struct {
	Type          ResponseType
	Result        string // For Success
	Error         string // For Failure
	PartialResult string // For Timeout
	Steps         []Step
	// MemberResponses is filled when Config.ShowMemberResponses is set.
	MemberResponses []MemberResponse
	Metadata        Metadata
}

// ResultText returns whichever text field matches the response type.
func (r Response) ResultText() string {
	switch r.Type {
	case agent.ResponseSuccess:
		return r.Result
	case agent.ResponseFailure:
		return r.Error
	case agent.ResponseTimeout:
		return r.PartialResult
	default:
		return ""
	}
}

// IsSuccess checks if the run produced a final answer.
func (r Response) IsSuccess() bool {
	return r.Type == agent.ResponseSuccess
}
