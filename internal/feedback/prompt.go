package feedback

import (
	"bytes"
	"text/template"
)

var promptTemplate = template.Must(template.New("feedback").Parse(`You are an expert speaking coach analyzing a practice conversation.

Category: {{.Category}}
Scenario: {{.ScenarioTitle}}
Context: {{.ScenarioPrompt}}

{{.Rubric}}

Here is the full transcript of the conversation:
---
{{.Transcript}}
---

Analyze the speaker's performance and return ONLY a valid JSON object (no markdown, no code fences) with these fields:
{
  "clarity": <0-100 score>,
  "confidence": <0-100 score>,
  "engagement": <0-100 score>,
  "relevance": <0-100 score>,
  "overallScore": <0-100 weighted composite based on the category weights above>,
  "summary": "2-3 sentence summary of their performance",
  "strengths": ["strength1", "strength2", "strength3"],
  "improvements": ["specific improvement tip 1", "specific improvement tip 2", "specific improvement tip 3"]
}

IMPORTANT: All scores (clarity, confidence, engagement, relevance) must be on a 0-100 scale, NOT 1-10.
Be encouraging but honest. Provide specific, actionable feedback.`))

type promptData struct {
	Input
	Rubric string
}

// BuildPrompt renders the single user message sent to the model.
func BuildPrompt(in Input) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{Input: in, Rubric: RubricFor(in.Category)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
