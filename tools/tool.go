// Package tools provides the tools agents call: web search, news search,
// article reading and a reasoning scratchpad.
//
// Information Hiding:
// - Remote endpoints, parsing and output formatting inside each tool
// - Retry and timeout handling inside the Executor
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/retry"
)

// ToolParameter describes one argument a tool accepts.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata is what agents see of a tool in their prompt.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// Definition renders the metadata as a function-calling schema.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	properties := make(map[string]any, len(m.Parameters))
	required := []string{}
	for _, p := range m.Parameters {
		properties[p.Name] = map[string]any{"type": p.ParamType, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters:  map[string]any{"type": "object", "properties": properties, "required": required},
	}
}

// ToolResult is a tool's output. A non-nil Error marks a failed call whose
// message is shown to the model as the observation.
type ToolResult struct {
	Output string
	Error  error
}

func (t ToolResult) Success() bool { return t.Error == nil }

func SuccessResult(output string) ToolResult { return ToolResult{Output: output} }

func FailureResult(err error) ToolResult { return ToolResult{Error: err} }

func FailureResultf(format string, args ...any) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is implemented by everything an agent can call.
//
// Execute reports tool-level failures in the ToolResult; its error return is
// for cancellation and other conditions the caller must stop on.
type Tool interface {
	Metadata() ToolMetadata
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)
	Validate(args json.RawMessage) error
}

// BaseTool is embedded by tools that accept any arguments.
type BaseTool struct{}

func (BaseTool) Validate(json.RawMessage) error { return nil }

// ToolConfig bounds one tool call. The zero value means a 30s timeout and
// three immediate attempts.
type ToolConfig struct {
	TimeoutSecs uint64
	MaxRetries  uint32
	Backoff     retry.Strategy
}

func (c *ToolConfig) Timeout() time.Duration {
	if c == nil || c.TimeoutSecs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c *ToolConfig) Retries() uint32 {
	if c == nil || c.MaxRetries == 0 {
		return retry.DefaultMaxAttempts
	}
	return c.MaxRetries
}

// Policy maps the config onto a retry policy; backoff strategies wait
// between 100ms and 5s.
func (c *ToolConfig) Policy() retry.Policy {
	p := retry.Policy{MaxAttempts: int(c.Retries()), Strategy: retry.StrategyNone}
	if c != nil && c.Backoff != "" && c.Backoff != retry.StrategyNone {
		p.Strategy = c.Backoff
		p.InitialInterval = 100 * time.Millisecond
		p.MaxInterval = 5 * time.Second
	}
	return p
}

// DefaultToolConfig is what agents start with: 30s, three attempts,
// exponential backoff.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		TimeoutSecs: 30,
		MaxRetries:  retry.DefaultMaxAttempts,
		Backoff:     retry.StrategyExponential,
	}
}
