package feedback

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
)

const (
	// DefaultScore replaces missing, zero or non-numeric scores.
	DefaultScore = 50

	fence = "```"
)

var (
	defaultStrengths    = []string{"Keep practicing!"}
	defaultImprovements = []string{"Try another session for better analysis"}
)

// replySchema only requires a JSON object; field shapes are coerced
// afterwards so that a sloppy reply still yields feedback.
var replySchema = &llm.Schema{
	Name:        "session-feedback-reply",
	Description: "Model reply carrying session feedback",
	Definition:  map[string]any{"type": "object"},
}

// StripFence removes one fenced-code wrapper from text. The opening line
// (including any language tag) is dropped, then everything from the last
// closing fence on.
func StripFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, fence) {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		if strings.HasSuffix(s, fence) {
			s = s[:strings.LastIndex(s, fence)]
		}
	}
	return strings.TrimSpace(s)
}

// ParseReply turns raw model text into normalized feedback.
func ParseReply(text string) (*session.Feedback, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	raw := json.RawMessage(StripFence(text))
	if err := llm.ValidateJSON(replySchema, raw); err != nil {
		return nil, &MalformedResponseError{Content: raw, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &MalformedResponseError{Content: raw, Err: err}
	}
	if dec.More() {
		return nil, &MalformedResponseError{Content: raw, Err: errors.New("trailing data after JSON object")}
	}

	fb := &session.Feedback{
		Clarity:      score(doc["clarity"]),
		Confidence:   score(doc["confidence"]),
		Engagement:   score(doc["engagement"]),
		Relevance:    score(doc["relevance"]),
		OverallScore: score(doc["overallScore"]),
		Summary:      summary(doc["summary"]),
		Strengths:    stringList(doc["strengths"], defaultStrengths),
		Improvements: stringList(doc["improvements"], defaultImprovements),
	}
	fb.XPEarned = session.XPFor(fb.OverallScore)
	return fb, nil
}

// Normalize maps a legacy 1-10 score onto the 0-100 scale. Values at or
// below 10 are multiplied by ten.
func Normalize(v float64) float64 {
	if v <= 10 {
		return v * 10
	}
	return v
}

func score(v any) float64 {
	n := toNumber(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		n = DefaultScore
	}
	return Normalize(n)
}

func summary(v any) string {
	if !truthy(v) {
		return ""
	}
	return toString(v)
}

func stringList(v any, fallback []string) []string {
	items, ok := v.([]any)
	if !ok {
		return append([]string(nil), fallback...)
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = toString(it)
	}
	return out
}

var decimalNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// toNumber coerces a decoded JSON value to a number the way loosely typed
// clients read these documents: numeric strings parse, booleans are 1 or 0,
// null and "" are 0, anything else is NaN.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case json.Number:
		return parseNumber(string(t))
	case float64:
		return t
	case string:
		return parseNumber(t)
	case []any:
		return parseNumber(toString(t))
	default:
		return math.NaN()
	}
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	if !decimalNumber.MatchString(s) {
		return math.NaN()
	}
	// Out-of-range values come back as ±Inf or 0 with an error; both are
	// handled by the caller's fallback.
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f := parseNumber(string(t))
		return f != 0 && !math.IsNaN(f)
	case float64:
		return t != 0 && !math.IsNaN(t)
	default:
		return true
	}
}

// toString renders a decoded JSON value as text: arrays join their elements
// with commas (null elements as empty), objects become "[object Object]".
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return formatNumber(parseNumber(string(t)))
	case float64:
		return formatNumber(t)
	case []any:
		parts := make([]string, len(t))
		for i, el := range t {
			if el != nil {
				parts[i] = toString(el)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// 1e-07 -> 1e-7
		s = strings.Replace(s, "e-0", "e-", 1)
		return strings.Replace(s, "e+0", "e+", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
