// Package storetest holds the behavior every SessionRepo backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

// Base is a fixed creation time; backends that keep millisecond precision
// round-trip it exactly.
var Base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Pending returns a pending record for user/id created at Base+age.
func Pending(user, id string, offset time.Duration) *session.Record {
	return &session.Record{
		Ref:            session.Ref{UserID: user, SessionID: id},
		Transcript:     "Me: Hi, I'd like to book a table for two.",
		Category:       "Phone Anxiety",
		ScenarioTitle:  "Restaurant booking",
		ScenarioPrompt: "Call a busy restaurant to book dinner.",
		FeedbackStatus: session.StatusPending,
		CreatedAt:      Base.Add(offset),
	}
}

// SampleFeedback is a complete feedback payload.
func SampleFeedback() session.Feedback {
	return session.Feedback{
		OverallScore: 80,
		Clarity:      75,
		Confidence:   70,
		Engagement:   85,
		Relevance:    90,
		Summary:      "Calm and clear.",
		Strengths:    []string{"Polite", "Direct"},
		Improvements: []string{"Confirm the time back"},
		XPEarned:     210,
	}
}

// Run exercises a fresh repo from newRepo for each subtest.
func Run(t *testing.T, newRepo func(t *testing.T) store.SessionRepo) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newRepo(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newRepo(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("Complete", func(t *testing.T) { testComplete(t, newRepo(t)) })
	t.Run("CompleteEmptyLists", func(t *testing.T) { testCompleteEmptyLists(t, newRepo(t)) })
	t.Run("CompleteOnlyOnce", func(t *testing.T) { testCompleteOnlyOnce(t, newRepo(t)) })
	t.Run("Fail", func(t *testing.T) { testFail(t, newRepo(t)) })
	t.Run("WritesMissing", func(t *testing.T) { testWritesMissing(t, newRepo(t)) })
	t.Run("ListPending", func(t *testing.T) { testListPending(t, newRepo(t)) })
	t.Run("ConcurrentComplete", func(t *testing.T) { testConcurrentComplete(t, newRepo(t)) })
}

func testCreateGet(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, rec.Ref, got.Ref)
	assert.Equal(t, rec.Transcript, got.Transcript)
	assert.Equal(t, rec.Category, got.Category)
	assert.Equal(t, rec.ScenarioTitle, got.ScenarioTitle)
	assert.Equal(t, rec.ScenarioPrompt, got.ScenarioPrompt)
	assert.Equal(t, session.StatusPending, got.FeedbackStatus)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", rec.CreatedAt, got.CreatedAt)
	assert.Nil(t, got.Feedback)
	assert.Empty(t, got.FeedbackGeneratedBy)
}

func testCreateDuplicate(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Pending("u1", "s1", 0)))
	assert.ErrorIs(t, repo.Create(ctx, Pending("u1", "s1", time.Minute)), store.ErrAlreadyExists)

	// Same session id under another user is a different record.
	assert.NoError(t, repo.Create(ctx, Pending("u2", "s1", 0)))
}

func testGetMissing(t *testing.T, repo store.SessionRepo) {
	_, err := repo.Get(context.Background(), session.Ref{UserID: "nobody", SessionID: "none"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testComplete(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))

	fb := SampleFeedback()
	require.NoError(t, repo.Complete(ctx, rec.Ref, fb, session.GeneratedByServer))

	got, err := repo.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.FeedbackStatus)
	assert.Equal(t, session.GeneratedByServer, got.FeedbackGeneratedBy)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, fb, *got.Feedback)
	assert.Equal(t, rec.Transcript, got.Transcript)
}

func testCompleteEmptyLists(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))

	fb := SampleFeedback()
	fb.Strengths = []string{}
	fb.Improvements = nil
	require.NoError(t, repo.Complete(ctx, rec.Ref, fb, session.GeneratedByClient))

	got, err := repo.Get(ctx, rec.Ref)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.NotNil(t, got.Feedback.Strengths)
	assert.NotNil(t, got.Feedback.Improvements)
	assert.Empty(t, got.Feedback.Strengths)
	assert.Empty(t, got.Feedback.Improvements)
}

func testCompleteOnlyOnce(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.Complete(ctx, rec.Ref, SampleFeedback(), session.GeneratedByClient))

	other := SampleFeedback()
	other.OverallScore = 10
	assert.ErrorIs(t, repo.Complete(ctx, rec.Ref, other, session.GeneratedByServer), store.ErrNotPending)
	assert.ErrorIs(t, repo.Fail(ctx, rec.Ref), store.ErrNotPending)

	got, err := repo.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.FeedbackStatus)
	assert.Equal(t, session.GeneratedByClient, got.FeedbackGeneratedBy)
	assert.Equal(t, 80.0, got.Feedback.OverallScore)
}

func testFail(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.Fail(ctx, rec.Ref))

	got, err := repo.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.FeedbackStatus)
	assert.Nil(t, got.Feedback)
	assert.Empty(t, got.FeedbackGeneratedBy)

	assert.ErrorIs(t, repo.Complete(ctx, rec.Ref, SampleFeedback(), session.GeneratedByServer), store.ErrNotPending)
}

func testWritesMissing(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	ref := session.Ref{UserID: "ghost", SessionID: "s"}
	assert.ErrorIs(t, repo.Complete(ctx, ref, SampleFeedback(), session.GeneratedByServer), store.ErrNotFound)
	assert.ErrorIs(t, repo.Fail(ctx, ref), store.ErrNotFound)
}

func testListPending(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	for i, user := range []string{"u1", "u2", "u3"} {
		for j := range 3 {
			id := fmt.Sprintf("s%d", j)
			require.NoError(t, repo.Create(ctx, Pending(user, id, time.Duration(i*3+j)*time.Minute)))
		}
	}
	require.NoError(t, repo.Complete(ctx, session.Ref{UserID: "u1", SessionID: "s0"}, SampleFeedback(), session.GeneratedByServer))
	require.NoError(t, repo.Fail(ctx, session.Ref{UserID: "u2", SessionID: "s0"}))

	// Cutoff at +6m includes creation offsets 0..6 minus the two settled.
	got, err := repo.ListPending(ctx, Base.Add(6*time.Minute), 0)
	require.NoError(t, err)
	var ids []string
	for _, r := range got {
		assert.Equal(t, session.StatusPending, r.FeedbackStatus)
		ids = append(ids, r.Ref.String())
	}
	assert.Equal(t, []string{
		"users/u1/sessions/s1",
		"users/u1/sessions/s2",
		"users/u2/sessions/s1",
		"users/u2/sessions/s2",
		"users/u3/sessions/s0",
	}, ids)

	limited, err := repo.ListPending(ctx, Base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "s1", limited[0].SessionID)
	assert.Equal(t, "u1", limited[0].UserID)

	none, err := repo.ListPending(ctx, Base.Add(-time.Minute), 50)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testConcurrentComplete(t *testing.T, repo store.SessionRepo) {
	ctx := context.Background()
	rec := Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(ctx, rec))

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fb := SampleFeedback()
			fb.OverallScore = float64(11 + i)
			err := repo.Complete(ctx, rec.Ref, fb, session.GeneratedByServer)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrNotPending) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
