// Package structured extracts JSON values from free-form completion text.
//
// Language models rarely return bare JSON. They wrap it in prose or code
// fences, or emit several candidate objects. Parse tries a strict decode
// first, then scans for the first balanced object or array that decodes into
// the target type. Callers always hold a fallback value for the !ok case.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

// trailingComma matches a comma directly before a closing bracket.
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// Parse decodes text into T. It returns false if no candidate decodes.
func Parse[T any](text string) (T, bool) {
	var v T
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return v, false
	}
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}

	for start := 0; start < len(trimmed); start++ {
		c := trimmed[start]
		if c != '{' && c != '[' {
			continue
		}
		end := matchBracket(trimmed, start)
		if end < 0 {
			continue
		}
		if candidate, ok := decode[T](trimmed[start : end+1]); ok {
			return candidate, true
		}
	}
	return v, false
}

// decode unmarshals raw, retrying once with trailing commas removed.
func decode[T any](raw string) (T, bool) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	cleaned := trailingComma.ReplaceAllString(raw, "$1")
	if cleaned == raw {
		return v, false
	}
	var retry T
	if err := json.Unmarshal([]byte(cleaned), &retry); err != nil {
		return v, false
	}
	return retry, true
}

// Extract returns the first balanced JSON object or array substring.
func Extract(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if end := matchBracket(text, start); end >= 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}

// matchBracket returns the index closing the bracket at start, or -1.
// Brackets inside string literals are ignored.
func matchBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
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
