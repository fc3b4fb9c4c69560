// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/tools"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder("name") - no stutter.
type Builder struct {
	config Config
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		config: Config{Name: name, Tools: []tools.Tool{}},
	}
}

// Role sets the agent's role line.
func (b *Builder) Role(role string) *Builder {
	b.config.Role = role
	return b
}

// Description sets the agent's description.
func (b *Builder) Description(description string) *Builder {
	b.config.Description = description
	return b
}

// Instructions appends instruction lines.
func (b *Builder) Instructions(lines ...string) *Builder {
	b.config.Instructions = append(b.config.Instructions, lines...)
	return b
}

// ExpectedOutput sets the expected output description.
func (b *Builder) ExpectedOutput(text string) *Builder {
	b.config.ExpectedOutput = text
	return b
}

// Markdown enables markdown formatting of answers.
func (b *Builder) Markdown(enabled bool) *Builder {
	b.config.Markdown = enabled
	return b
}

// Tool adds a tool to the agent.
func (b *Builder) Tool(tool tools.Tool) *Builder {
	b.config.Tools = append(b.config.Tools, tool)
	return b
}

// Tools adds multiple tools at once.
func (b *Builder) Tools(toolList []tools.Tool) *Builder {
	b.config.Tools = append(b.config.Tools, toolList...)
	return b
}

// ResponseSchema sets the JSON schema for structured outputs.
func (b *Builder) ResponseSchema(name string, schema json.RawMessage) *Builder {
	b.config.ResponseSchemaName = name
	b.config.ResponseSchema = schema
	return b
}

// ReturnToolOutput configures the agent to return tool output directly.
func (b *Builder) ReturnToolOutput(enabled bool) *Builder {
	b.config.ReturnToolOutput = enabled
	return b
}

// Build creates the agent configuration.
func (b *Builder) Build() Config {
	c := b.config
	if c.Description == "" && c.Role == "" {
		c.Description = fmt.Sprintf("You are an agent named %s. Use available tools to complete tasks.", c.Name)
	}
	c.Instructions = append([]string(nil), c.Instructions...)
	c.Tools = append([]tools.Tool(nil), c.Tools...)
	return c
}

// New builds the configuration and binds it to provider.
func (b *Builder) New(provider llm.Provider) *Agent {
	return New(b.Build(), provider)
}

// Name returns the builder's agent name.
func (b *Builder) Name() string {
	return b.config.Name
}

// ToolCount returns the number of tools registered.
func (b *Builder) ToolCount() int {
	return len(b.config.Tools)
}
