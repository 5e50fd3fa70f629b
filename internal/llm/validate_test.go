package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoreSchema() *Schema {
	return &Schema{
		Name:        "test-scores",
		Description: "Scores with a summary",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary":      map[string]any{"type": "string"},
				"overallScore": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
				"strengths": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []any{"summary", "overallScore"},
		},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		raw     string
		wantErr bool
	}{
		{"valid", scoreSchema(), `{"summary":"ok","overallScore":72,"strengths":["pace"]}`, false},
		{"optional omitted", scoreSchema(), `{"summary":"ok","overallScore":72}`, false},
		{"missing required", scoreSchema(), `{"summary":"ok"}`, true},
		{"wrong type", scoreSchema(), `{"summary":"ok","overallScore":"high"}`, true},
		{"out of range", scoreSchema(), `{"summary":"ok","overallScore":140}`, true},
		{"wrong item type", scoreSchema(), `{"summary":"ok","overallScore":1,"strengths":[1,2]}`, true},
		{"malformed", scoreSchema(), `{not json}`, true},
		{"empty", scoreSchema(), ``, true},
		{"nil schema", nil, `{"anything":"goes"}`, false},
		{"object only", &Schema{Name: "test-object", Definition: map[string]any{"type": "object"}}, `[1,2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON(tt.schema, json.RawMessage(tt.raw))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var inv *ErrInvalidResponse
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tt.raw, string(inv.Content))
		})
	}
}

func TestValidateJSON_CachesCompiledSchema(t *testing.T) {
	s := &Schema{Name: "test-cache", Definition: map[string]any{"type": "object"}}
	require.NoError(t, ValidateJSON(s, json.RawMessage(`{}`)))

	_, ok := compiled.Load("test-cache")
	assert.True(t, ok)
}
