// Package firestore stores session records in Cloud Firestore at
// users/{uid}/sessions/{sid}, using the field names the mobile clients read.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

type Store struct {
	client *firestore.Client
}

var _ store.SessionRepo = (*Store)(nil)

// New connects to Firestore in projectID. FIRESTORE_EMULATOR_HOST is
// honored by the client library.
func New(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) doc(ref session.Ref) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(ref.UserID).Collection(sessionsCollection).Doc(ref.SessionID)
}

// sessionDoc mirrors the stored document. Feedback fields stay absent
// until completion.
type sessionDoc struct {
	Transcript     string    `firestore:"transcript"`
	Category       string    `firestore:"category"`
	ScenarioTitle  string    `firestore:"scenarioTitle"`
	ScenarioPrompt string    `firestore:"scenarioPrompt"`
	FeedbackStatus string    `firestore:"feedbackStatus"`
	CreatedAt      time.Time `firestore:"createdAt"`

	OverallScore        *float64 `firestore:"overallScore,omitempty"`
	Clarity             *float64 `firestore:"clarity,omitempty"`
	Confidence          *float64 `firestore:"confidence,omitempty"`
	Engagement          *float64 `firestore:"engagement,omitempty"`
	Relevance           *float64 `firestore:"relevance,omitempty"`
	Summary             *string  `firestore:"summary,omitempty"`
	Strengths           []string `firestore:"strengths,omitempty"`
	Improvements        []string `firestore:"improvements,omitempty"`
	XPEarned            *float64 `firestore:"xpEarned,omitempty"`
	FeedbackGeneratedBy string   `firestore:"feedbackGeneratedBy,omitempty"`
}

func toDoc(rec *session.Record) sessionDoc {
	d := sessionDoc{
		Transcript:     rec.Transcript,
		Category:       rec.Category,
		ScenarioTitle:  rec.ScenarioTitle,
		ScenarioPrompt: rec.ScenarioPrompt,
		FeedbackStatus: string(rec.FeedbackStatus),
		CreatedAt:      rec.CreatedAt,
	}
	if d.FeedbackStatus == "" {
		d.FeedbackStatus = string(session.StatusPending)
	}
	if fb := rec.Feedback; fb != nil {
		d.OverallScore = &fb.OverallScore
		d.Clarity = &fb.Clarity
		d.Confidence = &fb.Confidence
		d.Engagement = &fb.Engagement
		d.Relevance = &fb.Relevance
		d.Summary = &fb.Summary
		d.Strengths = fb.Strengths
		d.Improvements = fb.Improvements
		d.XPEarned = &fb.XPEarned
		d.FeedbackGeneratedBy = rec.FeedbackGeneratedBy
	}
	return d
}

func fromDoc(ref session.Ref, d sessionDoc) *session.Record {
	rec := &session.Record{
		Ref:                 ref,
		Transcript:          d.Transcript,
		Category:            d.Category,
		ScenarioTitle:       d.ScenarioTitle,
		ScenarioPrompt:      d.ScenarioPrompt,
		FeedbackStatus:      session.Status(d.FeedbackStatus),
		CreatedAt:           d.CreatedAt.UTC(),
		FeedbackGeneratedBy: d.FeedbackGeneratedBy,
	}
	if rec.FeedbackStatus == session.StatusCompleted && d.OverallScore != nil {
		rec.Feedback = &session.Feedback{
			OverallScore: deref(d.OverallScore),
			Clarity:      deref(d.Clarity),
			Confidence:   deref(d.Confidence),
			Engagement:   deref(d.Engagement),
			Relevance:    deref(d.Relevance),
			Strengths:    nonNil(d.Strengths),
			Improvements: nonNil(d.Improvements),
			XPEarned:     deref(d.XPEarned),
		}
		if d.Summary != nil {
			rec.Feedback.Summary = *d.Summary
		}
	}
	return rec
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// refOf recovers the record handle from users/{uid}/sessions/{sid}.
func refOf(doc *firestore.DocumentRef) session.Ref {
	ref := session.Ref{SessionID: doc.ID}
	if parent := doc.Parent.Parent; parent != nil {
		ref.UserID = parent.ID
	}
	return ref
}

func (s *Store) Create(ctx context.Context, rec *session.Record) error {
	_, err := s.doc(rec.Ref).Create(ctx, toDoc(rec))
	if status.Code(err) == codes.AlreadyExists {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return &store.Error{Op: "create", Ref: rec.Ref, Err: err}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref session.Ref) (*session.Record, error) {
	snap, err := s.doc(ref).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.Error{Op: "get", Ref: ref, Err: err}
	}

	var d sessionDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, &store.Error{Op: "get", Ref: ref, Err: fmt.Errorf("decode: %w", err)}
	}
	return fromDoc(ref, d), nil
}

func (s *Store) Complete(ctx context.Context, ref session.Ref, fb session.Feedback, generatedBy string) error {
	strengths := nonNil(fb.Strengths)
	improvements := nonNil(fb.Improvements)
	return s.swap(ctx, "complete", ref, []firestore.Update{
		{Path: "feedbackStatus", Value: string(session.StatusCompleted)},
		{Path: "overallScore", Value: fb.OverallScore},
		{Path: "clarity", Value: fb.Clarity},
		{Path: "confidence", Value: fb.Confidence},
		{Path: "engagement", Value: fb.Engagement},
		{Path: "relevance", Value: fb.Relevance},
		{Path: "summary", Value: fb.Summary},
		{Path: "strengths", Value: strengths},
		{Path: "improvements", Value: improvements},
		{Path: "xpEarned", Value: fb.XPEarned},
		{Path: "feedbackGeneratedBy", Value: generatedBy},
	})
}

func (s *Store) Fail(ctx context.Context, ref session.Ref) error {
	return s.swap(ctx, "fail", ref, []firestore.Update{
		{Path: "feedbackStatus", Value: string(session.StatusFailed)},
	})
}

// swap applies updates in a transaction that first checks the record is
// still pending.
func (s *Store) swap(ctx context.Context, op string, ref session.Ref, updates []firestore.Update) error {
	doc := s.doc(ref)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if status.Code(err) == codes.NotFound {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		st, err := snap.DataAt("feedbackStatus")
		if err != nil {
			return err
		}
		if st != string(session.StatusPending) {
			return store.ErrNotPending
		}
		return tx.Update(doc, updates)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotPending):
		return err
	default:
		return &store.Error{Op: op, Ref: ref, Err: err}
	}
}

func (s *Store) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*session.Record, error) {
	q := s.client.CollectionGroup(sessionsCollection).
		Where("feedbackStatus", "==", string(session.StatusPending)).
		Where("createdAt", "<=", cutoff).
		OrderBy("createdAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*session.Record
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &store.Error{Op: "list pending", Err: err}
		}

		var d sessionDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, &store.Error{Op: "list pending", Ref: refOf(snap.Ref), Err: fmt.Errorf("decode: %w", err)}
		}
		out = append(out, fromDoc(refOf(snap.Ref), d))
	}
	return out, nil
}

// Watch calls fn for every pending session created after the listener
// starts. Documents already present in the first snapshot are left to the
// sweeper. It blocks until ctx ends.
func (s *Store) Watch(ctx context.Context, fn func(session.Ref)) error {
	q := s.client.CollectionGroup(sessionsCollection).
		Where("feedbackStatus", "==", string(session.StatusPending))

	it := q.Snapshots(ctx)
	defer it.Stop()

	initial := true
	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("watch pending sessions: %w", err)
		}
		if initial {
			initial = false
			continue
		}
		for _, ch := range qs.Changes {
			if ch.Kind == firestore.DocumentAdded {
				fn(refOf(ch.Doc.Ref))
			}
		}
	}
}
