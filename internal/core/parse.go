package core

import (
	"encoding/json"
	"strings"
)

// ExtractJSON strips Markdown code fences from an LLM response and reports
// whether a JSON payload remains. Callers branch on ok instead of catching
// decode faults speculatively.
func ExtractJSON(response string) (payload string, ok bool) {
	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if s == "" || !json.Valid([]byte(s)) {
		return "", false
	}
	return s, true
}

// decodeLLMJSON extracts and unmarshals a fenced JSON payload into v.
func decodeLLMJSON(response string, v any) bool {
	payload, ok := ExtractJSON(response)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(payload), v) == nil
}
