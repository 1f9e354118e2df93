package loop

import (
	"encoding/json"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
)

// ParseError means a checks step's output contained no well-formed verdict.
// It is distinct from a failing verdict: a failing verdict drives the fix
// step, a ParseError drives a re-prompt.
type ParseError struct {
	// Snippet is the tail of the offending output, truncated for logs.
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return "checks output contains no verdict object"
	}
	return "checks output contains no verdict object: " + e.Snippet
}

const snippetLimit = 200

// verdict is the wire shape of a checks verdict. Pass is a pointer so an
// object that merely happens to parse is not mistaken for a verdict.
type verdict struct {
	Pass     *bool    `json:"pass"`
	Failures []string `json:"failures"`
}

// ParseResult extracts the structured verdict from raw checks output. The
// instructions ask for the verdict as the final JSON line, but agents wrap
// replies in prose and code fences, so the scan walks candidate objects from
// the end of the output and accepts the last one carrying a boolean "pass".
func ParseResult(raw string) (*core.ValidationResult, error) {
	for end := len(raw); end > 0; {
		start := strings.LastIndex(raw[:end], "{")
		if start == -1 {
			break
		}
		if candidate := balancedObject(raw[start:]); candidate != "" {
			var v verdict
			if err := json.Unmarshal([]byte(candidate), &v); err == nil && v.Pass != nil {
				return &core.ValidationResult{Pass: *v.Pass, Failures: v.Failures}, nil
			}
		}
		end = start
	}
	return nil, &ParseError{Snippet: tailSnippet(raw)}
}

// balancedObject returns the brace-balanced object at the start of s, or ""
// when the braces never close. Strings and escapes are tracked so braces
// inside failure descriptions do not end the object early.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func tailSnippet(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > snippetLimit {
		return "..." + raw[len(raw)-snippetLimit:]
	}
	return raw
}
