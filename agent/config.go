// Agent configuration types.
//
// Information Hiding:
// - System prompt composition from persona fields
// - Default values hidden

package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/inkwell/tools"
)

// Config describes an agent persona.
type Config struct {
	// Name is a unique identifier for the agent.
	Name string

	// Role is a one-line job title, e.g. "Extracts article content".
	Role string

	// Description explains what this agent does (used by team coordinators).
	Description string

	// Instructions are rendered as a bulleted list in the system prompt.
	Instructions []string

	// ExpectedOutput describes the shape of a good answer.
	ExpectedOutput string

	// Markdown asks the model to format answers as markdown.
	Markdown bool

	// Tools available to this agent.
	Tools []tools.Tool

	// ResponseSchema is an optional JSON schema for structured outputs.
	ResponseSchema json.RawMessage

	// ResponseSchemaName names the schema in provider requests.
	ResponseSchemaName string

	// ReturnToolOutput returns the last tool output instead of final_answer.
	ReturnToolOutput bool
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "Assistant",
		Instructions: []string{"You are a helpful AI assistant."},
		Markdown:     true,
		Tools:        []tools.Tool{},
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

// HasResponseSchema returns true if a response schema is configured.
func (c *Config) HasResponseSchema() bool {
	return len(c.ResponseSchema) > 0
}

// SchemaName returns the schema name, derived from the agent name if unset.
func (c *Config) SchemaName() string {
	if c.ResponseSchemaName != "" {
		return c.ResponseSchemaName
	}
	var b strings.Builder
	for _, r := range strings.ToLower(c.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0:
			b.WriteByte('_')
		}
	}
	name := strings.TrimRight(b.String(), "_")
	if name == "" {
		return "response"
	}
	return name + "_response"
}

// SystemPrompt composes the persona into a system message.
func (c *Config) SystemPrompt() string {
	var sections []string

	if c.Description != "" {
		sections = append(sections, c.Description)
	} else if c.Name != "" {
		sections = append(sections, fmt.Sprintf("You are %s.", c.Name))
	}

	if c.Role != "" {
		sections = append(sections, fmt.Sprintf("<your_role>\n%s\n</your_role>", c.Role))
	}

	var instructions []string
	for _, in := range c.Instructions {
		if in = strings.TrimSpace(in); in != "" {
			instructions = append(instructions, "- "+in)
		}
	}
	if c.Markdown {
		instructions = append(instructions, "- Use markdown to format your answers.")
	}
	if len(instructions) > 0 {
		sections = append(sections, "<instructions>\n"+strings.Join(instructions, "\n")+"\n</instructions>")
	}

	if c.ExpectedOutput != "" {
		sections = append(sections, fmt.Sprintf("<expected_output>\n%s\n</expected_output>", strings.TrimSpace(c.ExpectedOutput)))
	}

	return strings.Join(sections, "\n\n")
}
