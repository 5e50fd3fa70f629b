package completion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FurqatMashrabjonov/speech-coach/internal/feedback"
	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store/memory"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store/storetest"
)

type scorerFunc func(ctx context.Context, in feedback.Input) (*session.Feedback, error)

func (f scorerFunc) Score(ctx context.Context, in feedback.Input) (*session.Feedback, error) {
	return f(ctx, in)
}

func fixedScore(calls *atomic.Int32) scorerFunc {
	return func(context.Context, feedback.Input) (*session.Feedback, error) {
		if calls != nil {
			calls.Add(1)
		}
		fb := storetest.SampleFeedback()
		return &fb, nil
	}
}

// newTestCoordinator returns a coordinator whose delay calls hook instead
// of sleeping.
func newTestCoordinator(repo store.SessionRepo, scorer Scorer, hook func()) *Coordinator {
	c := New(repo, scorer, DefaultConfig(), zerolog.Nop())
	c.wait = func(ctx context.Context, d time.Duration) error {
		if hook != nil {
			hook()
		}
		return ctx.Err()
	}
	return c
}

func seed(t *testing.T, repo store.SessionRepo) *session.Record {
	t.Helper()
	rec := storetest.Pending("u1", "s1", 0)
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestRunImmediate_Completes(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	var waited time.Duration
	var calls atomic.Int32
	c := New(repo, fixedScore(&calls), DefaultConfig(), zerolog.Nop())
	c.wait = func(_ context.Context, d time.Duration) error { waited = d; return nil }

	outcome, err := c.RunImmediate(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, 30*time.Second, waited)
	assert.Equal(t, int32(1), calls.Load())

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.FeedbackStatus)
	assert.Equal(t, session.GeneratedByServer, got.FeedbackGeneratedBy)
	assert.Equal(t, storetest.SampleFeedback(), *got.Feedback)
}

func TestRunImmediate_PassesRecordInputs(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	var seen feedback.Input
	var subject string
	c := newTestCoordinator(repo, scorerFunc(func(ctx context.Context, in feedback.Input) (*session.Feedback, error) {
		seen = in
		subject = llm.SubjectFrom(ctx)
		fb := storetest.SampleFeedback()
		return &fb, nil
	}), nil)

	_, err := c.RunImmediate(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, feedback.InputFrom(rec), seen)
	assert.Equal(t, "u1", subject, "the model request is tagged with the session owner")
}

func TestRunImmediate_NotPendingBeforeDelay(t *testing.T) {
	for _, status := range []session.Status{session.StatusCompleted, session.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			repo := memory.New()
			rec := storetest.Pending("u1", "s1", 0)
			rec.FeedbackStatus = status
			require.NoError(t, repo.Create(context.Background(), rec))

			waited := false
			var calls atomic.Int32
			c := newTestCoordinator(repo, fixedScore(&calls), func() { waited = true })

			outcome, err := c.RunImmediate(context.Background(), rec.Ref)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, outcome)
			assert.False(t, waited)
			assert.Zero(t, calls.Load())

			got, err := repo.Get(context.Background(), rec.Ref)
			require.NoError(t, err)
			assert.Equal(t, status, got.FeedbackStatus)
		})
	}
}

func TestRunImmediate_ClientWinsDuringDelay(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	clientFeedback := storetest.SampleFeedback()
	clientFeedback.OverallScore = 42
	var calls atomic.Int32
	c := newTestCoordinator(repo, fixedScore(&calls), func() {
		require.NoError(t, repo.Complete(context.Background(), rec.Ref, clientFeedback, session.GeneratedByClient))
	})

	outcome, err := c.RunImmediate(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, calls.Load())

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.GeneratedByClient, got.FeedbackGeneratedBy)
	assert.Equal(t, 42.0, got.Feedback.OverallScore)
}

func TestRunImmediate_Missing(t *testing.T) {
	c := newTestCoordinator(memory.New(), fixedScore(nil), nil)

	outcome, err := c.RunImmediate(context.Background(), session.Ref{UserID: "u", SessionID: "gone"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestRunImmediate_ClientWinsWhileScoring(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	clientFeedback := storetest.SampleFeedback()
	clientFeedback.Summary = "from the phone"
	c := newTestCoordinator(repo, scorerFunc(func(ctx context.Context, _ feedback.Input) (*session.Feedback, error) {
		require.NoError(t, repo.Complete(ctx, rec.Ref, clientFeedback, session.GeneratedByClient))
		fb := storetest.SampleFeedback()
		return &fb, nil
	}), nil)

	outcome, err := c.RunImmediate(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, outcome)

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, "from the phone", got.Feedback.Summary)
	assert.Equal(t, session.GeneratedByClient, got.FeedbackGeneratedBy)
}

func TestScoringFailuresMarkFailed(t *testing.T) {
	tests := []struct {
		name   string
		scorer scorerFunc
	}{
		{"transport", func(context.Context, feedback.Input) (*session.Feedback, error) {
			return nil, &feedback.TransportError{Err: errors.New("connection reset")}
		}},
		{"empty", func(context.Context, feedback.Input) (*session.Feedback, error) {
			return nil, feedback.ErrEmptyResponse
		}},
		{"malformed", func(context.Context, feedback.Input) (*session.Feedback, error) {
			return nil, &feedback.MalformedResponseError{Err: errors.New("not json")}
		}},
		{"panic", func(context.Context, feedback.Input) (*session.Feedback, error) {
			panic("boom")
		}},
		{"nil feedback", func(context.Context, feedback.Input) (*session.Feedback, error) {
			return nil, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			rec := seed(t, repo)
			c := newTestCoordinator(repo, tt.scorer, nil)

			outcome, err := c.RunImmediate(context.Background(), rec.Ref)
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, outcome)

			got, err := repo.Get(context.Background(), rec.Ref)
			require.NoError(t, err)
			assert.Equal(t, session.StatusFailed, got.FeedbackStatus)
			assert.Nil(t, got.Feedback)
			assert.Empty(t, got.FeedbackGeneratedBy)
		})
	}
}

func TestRunImmediate_CanceledDuringDelay(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	c := newTestCoordinator(repo, fixedScore(&calls), cancel)

	outcome, err := c.RunImmediate(ctx, rec.Ref)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeErrored, outcome)
	assert.Zero(t, calls.Load())

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.FeedbackStatus)
}

func TestRunSweep_CanceledWhileScoringLeavesPending(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCoordinator(repo, scorerFunc(func(ctx context.Context, _ feedback.Input) (*session.Feedback, error) {
		cancel()
		return nil, &feedback.TransportError{Err: ctx.Err()}
	}), nil)

	outcome, err := c.RunSweep(ctx, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeErrored, outcome)

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.FeedbackStatus)
}

// brokenWrites fails every status write.
type brokenWrites struct {
	store.SessionRepo
}

var errDisk = errors.New("disk unavailable")

func (b brokenWrites) Complete(_ context.Context, ref session.Ref, _ session.Feedback, _ string) error {
	return &store.Error{Op: "complete", Ref: ref, Err: errDisk}
}

func (b brokenWrites) Fail(_ context.Context, ref session.Ref) error {
	return &store.Error{Op: "fail", Ref: ref, Err: errDisk}
}

func TestFinalWriteErrorIsReturned(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)
	c := newTestCoordinator(brokenWrites{repo}, fixedScore(nil), nil)

	outcome, err := c.RunSweep(context.Background(), rec)
	assert.Equal(t, OutcomeErrored, outcome)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errDisk)

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.FeedbackStatus)
}

func TestRunSweep_NoDelay(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)

	waited := false
	c := newTestCoordinator(repo, fixedScore(nil), func() { waited = true })

	outcome, err := c.RunSweep(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.False(t, waited)
}

func TestSpawnAndWait(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)
	c := New(repo, fixedScore(nil), Config{ImmediateDelay: time.Millisecond}, zerolog.Nop())

	c.Spawn(rec.Ref)
	c.Wait()

	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.FeedbackStatus)
	assert.Equal(t, session.GeneratedByServer, got.FeedbackGeneratedBy)
}

func TestStopCancelsDelayedRuns(t *testing.T) {
	repo := memory.New()
	rec := seed(t, repo)
	var calls atomic.Int32
	c := New(repo, fixedScore(&calls), Config{ImmediateDelay: time.Hour}, zerolog.Nop())

	c.Spawn(rec.Ref)

	done := make(chan struct{})
	go func() { c.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Zero(t, calls.Load())
	got, err := repo.Get(context.Background(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.FeedbackStatus)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
