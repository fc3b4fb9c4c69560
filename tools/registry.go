// Tool registry.
//
// Information Hiding:
// - Name-keyed storage and its locking
// - Prompt rendering of the tool list

package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the tools one agent or coordinator may call, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewRegistryWith registers tools in order and fails on the first duplicate.
func NewRegistryWith(tools ...Tool) (*Registry, error) {
	r := NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register errors when the name is taken.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.tools[name]; taken {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names is sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata sorted by tool name.
func (r *Registry) List() []ToolMetadata {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolMetadata, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t.Metadata())
		}
	}
	return out
}

// Description renders the tools for a system prompt, one block per tool.
func (r *Registry) Description() string {
	blocks := make([]string, 0, r.Len())
	for _, meta := range r.List() {
		var b strings.Builder
		fmt.Fprintf(&b, "Tool: %s\nDescription: %s\nParameters:", meta.Name, meta.Description)
		for _, p := range meta.Parameters {
			need := "optional"
			if p.Required {
				need = "required"
			}
			fmt.Fprintf(&b, "\n  - %s (%s): %s [%s]", p.Name, p.ParamType, p.Description, need)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
