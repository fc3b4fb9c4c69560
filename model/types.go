// Package model provides domain types shared by agents and teams.
package model

// Step is one iteration of an agent or coordinator loop.
type Step struct {
	Iteration   int     `json:"iteration"`
	Thought     string  `json:"thought"`
	Action      *string `json:"action,omitempty"`
	Observation *string `json:"observation,omitempty"`
}

// ToolCall records one tool invocation.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// MemberResponse is the answer a team member gave to a delegated task.
type MemberResponse struct {
	Member  string `json:"member"`
	Task    string `json:"task"`
	Content string `json:"content"`
	Success bool   `json:"success"`
}
