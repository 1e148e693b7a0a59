package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"quality_score": 0.8}`,
			want: `{"quality_score": 0.8}`,
		},
		{
			name: "fenced",
			in:   "```json\n{\"alt_text\": \"patio\"}\n```",
			want: `{"alt_text": "patio"}`,
		},
		{
			name: "prose around object",
			in:   "Here you go:\n{\"tags\": [\"food\"]}\nHope that helps.",
			want: `{"tags": ["food"]}`,
		},
		{
			name: "fence without language tag",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.in)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSON_RoundTrip(t *testing.T) {
	raw := "```json\n{\"quality_score\": 0.72, \"alt_text\": \"dining room\", \"suggested_name\": \"dining-room\", \"tags\": [\"interior\"], \"hero_suitable\": true}\n```"

	var out ImageAnalysis
	require.NoError(t, json.Unmarshal(ExtractJSON(raw), &out))
	assert.Equal(t, 0.72, out.QualityScore)
	assert.Equal(t, "dining room", out.AltText)
	assert.True(t, out.HeroSuitable)
}

func TestBuildContentPrompt(t *testing.T) {
	p := buildContentPrompt(ContentRequest{
		EntityName: "Blue Harbor Bistro",
		Category:   "restaurant",
		Facts: map[string]string{
			"address": "12 Marina Walk",
			"phone":   "",
		},
	})

	assert.Contains(t, p, `"Blue Harbor Bistro"`)
	assert.Contains(t, p, "(restaurant)")
	assert.Contains(t, p, "- address: 12 Marina Walk")
	// Empty facts are omitted, not rendered as blank lines.
	assert.NotContains(t, p, "- phone:")
}
