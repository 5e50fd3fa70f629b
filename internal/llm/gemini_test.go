package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.5-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, resolveModel(tt.input, geminiModels), tt.input)
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string"},
			"overallScore": map[string]any{"type": "number"},
			"strengths": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"summary", "overallScore"},
	}

	schema := buildGeminiSchema(def)

	assert.Equal(t, genai.TypeObject, schema.Type)
	require.Len(t, schema.Properties, 3)
	assert.Equal(t, genai.TypeString, schema.Properties["summary"].Type)
	assert.Equal(t, genai.TypeNumber, schema.Properties["overallScore"].Type)
	assert.Equal(t, genai.TypeArray, schema.Properties["strengths"].Type)
	assert.Equal(t, genai.TypeString, schema.Properties["strengths"].Items.Type)
	assert.ElementsMatch(t, []string{"summary", "overallScore"}, schema.Required)
}

func TestBuildGeminiContents(t *testing.T) {
	contents := buildGeminiContents([]Message{
		{Role: RoleUser, Content: "score this"},
		{Role: RoleAssistant, Content: "ok"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "score this", contents[0].Parts[0].Text)
}

func TestMapGeminiError(t *testing.T) {
	var rl *ErrRateLimit
	assert.ErrorAs(t, mapGeminiError(&genai.APIError{Code: 429}), &rl)

	var unavail *ErrProviderUnavailable
	assert.ErrorAs(t, mapGeminiError(&genai.APIError{Code: 503}), &unavail)
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(t.Context(), GeminiConfig{Model: "gemini-flash"})
	assert.Error(t, err)
}
