// Package feedback scores practice-session transcripts with a language
// model and normalizes the reply into session feedback.
package feedback

import (
	"context"
	"fmt"

	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
)

// Purpose labels scoring requests in the LLM event log.
const Purpose = "session-feedback"

// Input is what the model sees about one session.
type Input struct {
	Transcript     string
	Category       string
	ScenarioTitle  string
	ScenarioPrompt string
}

// InputFrom copies the immutable inputs of rec.
func InputFrom(rec *session.Record) Input {
	return Input{
		Transcript:     rec.Transcript,
		Category:       rec.Category,
		ScenarioTitle:  rec.ScenarioTitle,
		ScenarioPrompt: rec.ScenarioPrompt,
	}
}

// Config tunes the model request. Zero values leave the provider defaults.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// Scorer sends one prompt per session to the provider.
type Scorer struct {
	provider llm.Provider
	cfg      Config
}

// NewScorer creates a Scorer.
func NewScorer(provider llm.Provider, cfg Config) *Scorer {
	return &Scorer{provider: provider, cfg: cfg}
}

// Score asks the model for feedback on in. Errors are ErrEmptyResponse,
// *MalformedResponseError or *TransportError.
func (s *Scorer) Score(ctx context.Context, in Input) (*session.Feedback, error) {
	ctx = llm.WithPurpose(ctx, Purpose)

	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("build feedback prompt: %w", err)
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return ParseReply(resp.Text())
}
