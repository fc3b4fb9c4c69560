// Reasoning scratchpad tool.
//
// Information Hiding:
// - Step log kept per tool instance
// - Rendering of the accumulated reasoning trail

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ReasoningTool lets a coordinator write down a reasoning step before it
// delegates or answers. Each call appends to the trail and echoes it back.
type ReasoningTool struct {
	mu    sync.Mutex
	steps []ReasoningStep
}

// ReasoningStep is one recorded thought.
type ReasoningStep struct {
	Title      string  `json:"title"`
	Thought    string  `json:"thought"`
	Action     string  `json:"action,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewReasoningTool creates the think tool.
func NewReasoningTool() *ReasoningTool {
	return &ReasoningTool{}
}

// Metadata returns the tool metadata.
func (t *ReasoningTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "think",
		Description: "Use as a scratchpad to reason about the problem step by step before acting. Records the thought and returns the reasoning so far.",
		Parameters: []ToolParameter{
			{Name: "title", ParamType: "string", Description: "Short title of this step", Required: false},
			{Name: "thought", ParamType: "string", Description: "The reasoning for this step", Required: true},
			{Name: "action", ParamType: "string", Description: "What you intend to do next", Required: false},
			{Name: "confidence", ParamType: "number", Description: "Confidence between 0 and 1", Required: false},
		},
	}
}

// Validate validates the arguments.
func (t *ReasoningTool) Validate(args json.RawMessage) error {
	var step ReasoningStep
	if err := json.Unmarshal(args, &step); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(step.Thought) == "" {
		return fmt.Errorf("thought cannot be empty")
	}
	if step.Confidence < 0 || step.Confidence > 1 {
		return fmt.Errorf("invalid confidence %v: must be between 0 and 1", step.Confidence)
	}
	return nil
}

// Execute records the step.
func (t *ReasoningTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var step ReasoningStep
	if err := json.Unmarshal(args, &step); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if step.Title == "" {
		step.Title = "Step"
	}

	t.mu.Lock()
	t.steps = append(t.steps, step)
	steps := append([]ReasoningStep(nil), t.steps...)
	t.mu.Unlock()

	var b strings.Builder
	b.WriteString("Reasoning so far:\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s: %s", i+1, s.Title, s.Thought)
		if s.Action != "" {
			fmt.Fprintf(&b, " (next: %s)", s.Action)
		}
		if s.Confidence > 0 {
			fmt.Fprintf(&b, " [confidence %.2f]", s.Confidence)
		}
		b.WriteString("\n")
	}
	return SuccessResult(strings.TrimSpace(b.String())), nil
}

// Steps returns a copy of the recorded steps.
func (t *ReasoningTool) Steps() []ReasoningStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ReasoningStep(nil), t.steps...)
}

// Reset clears the trail.
func (t *ReasoningTool) Reset() {
	t.mu.Lock()
	t.steps = nil
	t.mu.Unlock()
}
