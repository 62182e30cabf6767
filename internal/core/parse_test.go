package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantOK   bool
	}{
		{"bare json", `{"intent": "sales"}`, `{"intent": "sales"}`, true},
		{"json fence", "```json\n{\"intent\": \"sales\"}\n```", `{"intent": "sales"}`, true},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"not json", "here is your answer", "", false},
		{"empty", "", "", false},
		{"fenced garbage", "```json\nnot json at all\n```", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.response)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
