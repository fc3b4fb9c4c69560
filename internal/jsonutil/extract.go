// Package jsonutil extracts JSON payloads from model replies.
//
// Models often wrap JSON in markdown fences or surround it with commentary.
// Extraction tries, in order: the whole reply, a fenced block, then the first
// balanced object or array found by a string-aware scanner.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract returns the JSON portion of a reply.
func Extract(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return trimmed, nil
	}

	if fenced, ok := fencedBlock(trimmed); ok && json.Valid([]byte(fenced)) {
		return fenced, nil
	}

	for start := 0; start < len(trimmed); start++ {
		c := trimmed[start]
		if c != '{' && c != '[' {
			continue
		}
		end := balancedEnd(trimmed, start)
		if end < 0 {
			continue
		}
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := trimmed
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// Decode extracts JSON from a reply and unmarshals it into T.
func Decode[T any](response string) (T, error) {
	var result T
	err := DecodeInto(response, &result)
	return result, err
}

// DecodeInto extracts JSON from a reply and unmarshals it into dst.
func DecodeInto(response string, dst any) error {
	raw, err := Extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// fencedBlock returns the body of the first ``` fence, dropping a language tag.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	closing := strings.Index(body, "```")
	if closing < 0 {
		return strings.TrimSpace(body), true
	}
	return strings.TrimSpace(body[:closing]), true
}

// balancedEnd finds the index closing the bracket at start, skipping string
// literals. Returns -1 when unbalanced.
func balancedEnd(s string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
