package session

import (
	"fmt"
	"slices"
	"time"
)

// Status is the feedback lifecycle flag of a session record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automated transition is defined.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Provenance values for Record.FeedbackGeneratedBy.
const (
	GeneratedByServer = "cloud_function"
	GeneratedByClient = "client"
)

// Ref identifies one session record inside its owner's collection.
type Ref struct {
	UserID    string `json:"userId"`
	SessionID string `json:"id"`
}

// String renders the document path: users/{uid}/sessions/{sid}.
func (r Ref) String() string {
	return fmt.Sprintf("users/%s/sessions/%s", r.UserID, r.SessionID)
}

// Record is one user's practice attempt and its derived feedback.
type Record struct {
	Ref

	// Inputs, set at creation and never mutated here.
	Transcript     string `json:"transcript"`
	Category       string `json:"category"`
	ScenarioTitle  string `json:"scenarioTitle"`
	ScenarioPrompt string `json:"scenarioPrompt"`

	FeedbackStatus Status    `json:"feedbackStatus"`
	CreatedAt      time.Time `json:"createdAt"`

	// Feedback is nil until the record is completed.
	Feedback            *Feedback `json:"feedback,omitempty"`
	FeedbackGeneratedBy string    `json:"feedbackGeneratedBy,omitempty"`
}

// Feedback holds the scores and coaching notes written on completion.
type Feedback struct {
	OverallScore float64  `json:"overallScore"`
	Clarity      float64  `json:"clarity"`
	Confidence   float64  `json:"confidence"`
	Engagement   float64  `json:"engagement"`
	Relevance    float64  `json:"relevance"`
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	XPEarned     float64  `json:"xpEarned"`
}

// XPFor returns the experience points earned for an overall score.
func XPFor(overall float64) float64 {
	return 50 + overall*2
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Feedback != nil {
		fb := *r.Feedback
		fb.Strengths = slices.Clone(r.Feedback.Strengths)
		fb.Improvements = slices.Clone(r.Feedback.Improvements)
		out.Feedback = &fb
	}
	return &out
}
