// Package session holds workflow session state and the store abstraction that persists it.
//
// Information Hiding:
// - State encoding (one raw JSON document per key) hidden behind Get/Set
// - Store backends hidden behind the Store interface
//
// A State is owned by the caller of one workflow run. It is mutated in place by the
// running step and persisted explicitly at checkpoints; nothing here is shared globally.

package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// State is a caller-owned key/value context. Values are kept as raw JSON so that
// typed readers decide how to interpret them.
type State struct {
	values map[string]json.RawMessage
}

// NewState returns an empty state.
func NewState() *State {
	return &State{values: make(map[string]json.RawMessage)}
}

// Get decodes the value stored under key into dst. It reports whether the key exists.
// A decode failure is returned as an error with found set to true.
func (s *State) Get(key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode state key %q: %w", key, err)
	}
	return true, nil
}

// Set encodes v and stores it under key, replacing any previous value.
func (s *State) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state key %q: %w", key, err)
	}
	s.ensure()
	s.values[key] = raw
	return nil
}

// Raw returns the stored JSON for key.
func (s *State) Raw(key string) (json.RawMessage, bool) {
	raw, ok := s.values[key]
	return raw, ok
}

// SetRaw stores already-encoded JSON under key.
func (s *State) SetRaw(key string, raw json.RawMessage) {
	s.ensure()
	s.values[key] = append(json.RawMessage(nil), raw...)
}

// Delete removes key.
func (s *State) Delete(key string) {
	delete(s.values, key)
}

// Keys returns the stored keys in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	return len(s.values)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := NewState()
	for k, v := range s.values {
		c.values[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// MarshalJSON encodes the state as a single JSON object.
func (s *State) MarshalJSON() ([]byte, error) {
	if s == nil || s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON replaces the state with the given JSON object.
func (s *State) UnmarshalJSON(data []byte) error {
	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	s.values = values
	return nil
}

func (s *State) ensure() {
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
}

// Session is one persisted workflow session.
type Session struct {
	ID           string    `json:"session_id"`
	WorkflowName string    `json:"workflow_name"`
	State        *State    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New creates a session with empty state.
func New(id, workflowName string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		WorkflowName: workflowName,
		State:        NewState(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
