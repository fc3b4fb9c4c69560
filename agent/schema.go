// Structured output helpers.
//
// Information Hiding:
// - JSON schema reflection via invopop/jsonschema
// - Shape checks applied to model answers before they are accepted

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/richinex/inkwell/internal/jsonutil"
)

// SchemaFor reflects a JSON schema for T with every definition inlined and
// additional properties disallowed.
func SchemaFor[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""
	schema.ID = ""

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("agent: cannot marshal schema for %T: %v", zero, err))
	}
	return data
}

// Run executes a and decodes its answer into T.
func Run[T any](ctx context.Context, a *Agent, input string, maxIterations int) (T, Response, error) {
	var zero T
	resp := a.Execute(ctx, input, maxIterations)
	if !resp.IsSuccess() {
		return zero, resp, fmt.Errorf("agent %s: %s: %s", a.Name(), resp.Type, resp.ResultText())
	}

	out, err := jsonutil.Decode[T](resp.Result)
	if err != nil {
		return zero, resp, fmt.Errorf("agent %s returned malformed output: %w", a.Name(), err)
	}
	return out, resp, nil
}

type schemaNode struct {
	Type       json.RawMessage            `json:"type"`
	Required   []string                   `json:"required"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// types returns the declared JSON types; a missing type means any.
func (n schemaNode) types() []string {
	if len(n.Type) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(n.Type, &one); err == nil {
		return []string{one}
	}
	var many []string
	_ = json.Unmarshal(n.Type, &many)
	return many
}

// conformToSchema extracts the JSON value from answer and checks its top-level
// shape against schema: declared type, required properties and property types.
// It returns the compacted JSON.
func conformToSchema(answer string, schema json.RawMessage) (string, error) {
	raw, err := jsonutil.Extract(answer)
	if err != nil {
		return "", fmt.Errorf("no JSON value in answer")
	}

	var root schemaNode
	if err := json.Unmarshal(schema, &root); err != nil {
		return "", fmt.Errorf("invalid response schema: %w", err)
	}

	if err := checkKind("answer", json.RawMessage(raw), root.types()); err != nil {
		return "", err
	}

	if jsonKind(json.RawMessage(raw)) == "object" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return "", fmt.Errorf("answer is not a JSON object: %w", err)
		}

		for _, name := range root.Required {
			value, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("missing required field %q", name)
			}
			var prop schemaNode
			_ = json.Unmarshal(root.Properties[name], &prop)
			if jsonKind(value) == "null" && !contains(prop.types(), "null") {
				return "", fmt.Errorf("required field %q is null", name)
			}
		}

		for name, value := range fields {
			propSchema, declared := root.Properties[name]
			if !declared {
				continue
			}
			var prop schemaNode
			if err := json.Unmarshal(propSchema, &prop); err != nil {
				continue
			}
			if jsonKind(value) == "null" {
				continue
			}
			if err := checkKind(fmt.Sprintf("field %q", name), value, prop.types()); err != nil {
				return "", err
			}
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(raw)); err != nil {
		return "", fmt.Errorf("answer is not valid JSON: %w", err)
	}
	return compact.String(), nil
}

func checkKind(what string, value json.RawMessage, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	kind := jsonKind(value)
	for _, t := range allowed {
		if t == kind || (t == "number" && kind == "integer") {
			return nil
		}
	}
	return fmt.Errorf("%s must be %s, got %s", what, strings.Join(allowed, " or "), kind)
}

// jsonKind classifies a JSON value by its JSON-schema type name.
func jsonKind(value json.RawMessage) string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return "null"
	}
	switch trimmed[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		if bytes.ContainsAny(trimmed, ".eE") {
			return "number"
		}
		return "integer"
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
