package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
)

var (
	// ErrNotFound means no record exists at the ref.
	ErrNotFound = errors.New("session not found")

	// ErrNotPending means a status write lost the race: the record was
	// already completed or failed.
	ErrNotPending = errors.New("session is no longer pending")

	// ErrAlreadyExists means Create hit an existing ref.
	ErrAlreadyExists = errors.New("session already exists")
)

// Error wraps a backend failure with the operation and record it hit.
type Error struct {
	Op  string
	Ref session.Ref
	Err error
}

func (e *Error) Error() string {
	if e.Ref == (session.Ref{}) {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SessionRepo is the document-store view of session records. Complete and
// Fail are compare-and-swap: they apply only while the stored status is
// pending and return ErrNotPending otherwise.
type SessionRepo interface {
	// Create inserts rec. Returns ErrAlreadyExists for a duplicate ref.
	Create(ctx context.Context, rec *session.Record) error

	// Get returns the record at ref or ErrNotFound.
	Get(ctx context.Context, ref session.Ref) (*session.Record, error)

	// Complete writes fb, the completed status and generatedBy in one
	// atomic update.
	Complete(ctx context.Context, ref session.Ref, fb session.Feedback, generatedBy string) error

	// Fail marks the record failed without touching feedback fields.
	Fail(ctx context.Context, ref session.Ref) error

	// ListPending returns pending records across all users created at or
	// before cutoff, oldest first, at most limit of them (limit <= 0 means
	// no cap).
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*session.Record, error)
}

// LLMRequestEventData captures a single LLM request.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// EventRepo receives LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
}

// LLMEventRecord is a stored LLM request event.
type LLMEventRecord struct {
	ID        int
	Timestamp time.Time
	LLMRequestEventData
}

// QueryOpts filters event queries.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	Purpose string    // exact match when set
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
}

// PurposeUsage aggregates LLM usage for one purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int
}

// ModelUsage aggregates LLM usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}
