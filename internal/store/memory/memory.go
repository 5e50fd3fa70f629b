// Package memory is an in-process SessionRepo for local runs and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

// Store keeps records in a map guarded by a mutex. Records are cloned on
// the way in and out.
type Store struct {
	mu      sync.RWMutex
	records map[session.Ref]*session.Record
}

var _ store.SessionRepo = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[session.Ref]*session.Record)}
}

func (s *Store) Create(_ context.Context, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Ref]; ok {
		return store.ErrAlreadyExists
	}
	cp := rec.Clone()
	if cp.FeedbackStatus == "" {
		cp.FeedbackStatus = session.StatusPending
	}
	s.records[rec.Ref] = cp
	return nil
}

func (s *Store) Get(_ context.Context, ref session.Ref) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Complete(_ context.Context, ref session.Ref, fb session.Feedback, generatedBy string) error {
	return s.swap(ref, func(rec *session.Record) {
		fb.Strengths = listOrEmpty(fb.Strengths)
		fb.Improvements = listOrEmpty(fb.Improvements)
		rec.FeedbackStatus = session.StatusCompleted
		rec.Feedback = &fb
		rec.FeedbackGeneratedBy = generatedBy
	})
}

func (s *Store) Fail(_ context.Context, ref session.Ref) error {
	return s.swap(ref, func(rec *session.Record) {
		rec.FeedbackStatus = session.StatusFailed
	})
}

func (s *Store) swap(ref session.Ref, apply func(*session.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ref]
	if !ok {
		return store.ErrNotFound
	}
	if rec.FeedbackStatus != session.StatusPending {
		return store.ErrNotPending
	}
	apply(rec)
	return nil
}

func (s *Store) ListPending(_ context.Context, cutoff time.Time, limit int) ([]*session.Record, error) {
	s.mu.RLock()
	var out []*session.Record
	for _, rec := range s.records {
		if rec.FeedbackStatus == session.StatusPending && !rec.CreatedAt.After(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Ref.String() < out[j].Ref.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// listOrEmpty copies items, storing a missing list as empty like the other
// backends do.
func listOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return slices.Clone(items)
}
