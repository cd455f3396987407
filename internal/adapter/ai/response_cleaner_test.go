package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCleaner_StripFence(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean_json",
			input:    `{"bugs": []}`,
			expected: `{"bugs": []}`,
		},
		{
			name:     "json_fence",
			input:    "```json\n{\"bugs\": []}\n```",
			expected: `{"bugs": []}`,
		},
		{
			name:     "bare_fence_with_padding",
			input:    "  ```\n{\"bugs\": []}\n```  \n",
			expected: `{"bugs": []}`,
		},
		{
			name:     "prose_is_kept",
			input:    "Here is the analysis: {\"a\": 1}",
			expected: "Here is the analysis: {\"a\": 1}",
		},
		{
			name:     "unterminated_fence_is_kept",
			input:    "```json\n{\"a\": 1}",
			expected: "```json\n{\"a\": 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, cleaner.StripFence(tt.input))
		})
	}
}

func TestResponseCleaner_DecodeObject(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()

	var ok struct{ A int }
	require.NoError(t, cleaner.DecodeObject("```json\n{\"A\": 1}\n```", &ok))
	assert.Equal(t, 1, ok.A)

	rejected := []struct {
		name  string
		input string
	}{
		{"prose_around_object", "Here is the analysis: {\"A\": 1} Hope it helps!"},
		{"trailing_object", `{"A": 1} {"A": 2}`},
		{"trailing_commas", `{"A": 1,}`},
		{"array", `[{"A": 1}]`},
		{"truncated", "{ not json at all"},
		{"wrong_type", `{"A": "one"}`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var v struct{ A int }
			err := cleaner.DecodeObject(tt.input, &v)
			require.Error(t, err)
			var verr *JSONValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.input, verr.Original)
		})
	}
}
