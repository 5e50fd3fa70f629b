package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReply = `{
  "clarity": 72,
  "confidence": 65,
  "engagement": 80,
  "relevance": 90,
  "overallScore": 76,
  "summary": "Solid answers with a clear structure.",
  "strengths": ["Structured answers", "Good examples"],
  "improvements": ["Slow down", "Fewer fillers"]
}`

func TestParseReply_Full(t *testing.T) {
	fb, err := ParseReply(fullReply)
	require.NoError(t, err)

	assert.Equal(t, 72.0, fb.Clarity)
	assert.Equal(t, 65.0, fb.Confidence)
	assert.Equal(t, 80.0, fb.Engagement)
	assert.Equal(t, 90.0, fb.Relevance)
	assert.Equal(t, 76.0, fb.OverallScore)
	assert.Equal(t, "Solid answers with a clear structure.", fb.Summary)
	assert.Equal(t, []string{"Structured answers", "Good examples"}, fb.Strengths)
	assert.Equal(t, []string{"Slow down", "Fewer fillers"}, fb.Improvements)
	assert.Equal(t, 202.0, fb.XPEarned)
}

func TestParseReply_FencedMatchesBare(t *testing.T) {
	bare, err := ParseReply(fullReply)
	require.NoError(t, err)

	for _, wrapped := range []string{
		"```json\n" + fullReply + "\n```",
		"```\n" + fullReply + "\n```",
		"  \n```json\n" + fullReply + "```  \n",
	} {
		fb, err := ParseReply(wrapped)
		require.NoError(t, err, wrapped)
		assert.Equal(t, bare, fb)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{10, 100},
		{10.5, 10.5},
		{7, 70},
		{0.5, 5},
		{11, 11},
		{55, 55},
		{100, 100},
		{-3, -30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%v)", tt.in)
	}
}

func TestNormalize_IdempotentAboveTen(t *testing.T) {
	for v := 10.25; v <= 100; v += 7.5 {
		assert.Equal(t, Normalize(v), Normalize(Normalize(v)))
	}
}

func TestParseReply_ScoreCoercion(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{"missing", `{}`, 50},
		{"null", `{"clarity":null}`, 50},
		{"zero", `{"clarity":0}`, 50},
		{"legacy scale", `{"clarity":8}`, 80},
		{"threshold inclusive", `{"clarity":10}`, 100},
		{"numeric string", `{"clarity":" 85 "}`, 85},
		{"small numeric string", `{"clarity":"7"}`, 70},
		{"word", `{"clarity":"high"}`, 50},
		{"empty string", `{"clarity":""}`, 50},
		{"true", `{"clarity":true}`, 10},
		{"object", `{"clarity":{"value":90}}`, 50},
		{"single element array", `{"clarity":[95]}`, 95},
		{"multi element array", `{"clarity":[95,90]}`, 50},
		{"hex string", `{"clarity":"0x20"}`, 32},
		{"huge", `{"clarity":1e400}`, 50},
		{"fraction", `{"clarity":72.5}`, 72.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := ParseReply(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fb.Clarity)
		})
	}
}

func TestParseReply_MissingScoresDefault(t *testing.T) {
	fb, err := ParseReply(`{"summary":"ok"}`)
	require.NoError(t, err)

	for _, v := range []float64{fb.Clarity, fb.Confidence, fb.Engagement, fb.Relevance, fb.OverallScore} {
		assert.Equal(t, 50.0, v)
	}
	assert.Equal(t, 150.0, fb.XPEarned)
}

func TestParseReply_XPFromNormalizedOverall(t *testing.T) {
	fb, err := ParseReply(`{"overallScore":80}`)
	require.NoError(t, err)
	assert.Equal(t, 210.0, fb.XPEarned)

	fb, err = ParseReply(`{"overallScore":8}`)
	require.NoError(t, err)
	assert.Equal(t, 80.0, fb.OverallScore)
	assert.Equal(t, 210.0, fb.XPEarned)
}

func TestParseReply_Summary(t *testing.T) {
	tests := []struct {
		reply, want string
	}{
		{`{}`, ""},
		{`{"summary":null}`, ""},
		{`{"summary":false}`, ""},
		{`{"summary":0}`, ""},
		{`{"summary":"Nice."}`, "Nice."},
		{`{"summary":42}`, "42"},
		{`{"summary":true}`, "true"},
		{`{"summary":["a","b"]}`, "a,b"},
		{`{"summary":{"text":"x"}}`, "[object Object]"},
	}
	for _, tt := range tests {
		fb, err := ParseReply(tt.reply)
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, fb.Summary, tt.reply)
	}
}

func TestParseReply_ListFallback(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		strengths    []string
		improvements []string
	}{
		{"missing", `{}`, []string{"Keep practicing!"}, []string{"Try another session for better analysis"}},
		{"string", `{"strengths":"Good pace","improvements":"Slow down"}`, []string{"Keep practicing!"}, []string{"Try another session for better analysis"}},
		{"object", `{"strengths":{"a":1}}`, []string{"Keep practicing!"}, []string{"Try another session for better analysis"}},
		{"empty list kept", `{"strengths":[],"improvements":[]}`, []string{}, []string{}},
		{"mixed elements coerced", `{"strengths":["x",3,true,null,{"k":1}]}`, []string{"x", "3", "true", "null", "[object Object]"}, []string{"Try another session for better analysis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := ParseReply(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.strengths, fb.Strengths)
			assert.Equal(t, tt.improvements, fb.Improvements)
		})
	}
}

func TestParseReply_FallbackNotShared(t *testing.T) {
	a, err := ParseReply(`{}`)
	require.NoError(t, err)
	a.Strengths[0] = "mutated"

	b, err := ParseReply(`{}`)
	require.NoError(t, err)
	assert.Equal(t, "Keep practicing!", b.Strengths[0])
}

func TestParseReply_Empty(t *testing.T) {
	for _, reply := range []string{"", "   ", "\n\t"} {
		_, err := ParseReply(reply)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	}
}

func TestParseReply_Malformed(t *testing.T) {
	for _, reply := range []string{
		"Sure! Here is your feedback.",
		`{"clarity": 70,}`,
		"[1,2,3]",
		"null",
		"42",
		"```",
		"```json\n{\"clarity\":",
		`{"clarity":70} trailing`,
	} {
		_, err := ParseReply(reply)
		var mal *MalformedResponseError
		assert.ErrorAs(t, err, &mal, reply)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"```json\n{\"a\":1}", `{"a":1}`},
		{"```{\"a\":1}```", "```{\"a\":1}"},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFence(tt.in), tt.in)
	}
}
