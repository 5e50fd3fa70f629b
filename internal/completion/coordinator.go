// Package completion owns the feedback lifecycle of a session record:
// whether scoring runs now, and which terminal status it ends in.
package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FurqatMashrabjonov/speech-coach/internal/feedback"
	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

// DefaultImmediateDelay gives a client finishing its own scoring the first
// chance to write.
const DefaultImmediateDelay = 30 * time.Second

// Outcome is how one attempt ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"    // missing or not pending, nothing written
	OutcomeSuperseded Outcome = "superseded" // another writer settled it first
	OutcomeErrored    Outcome = "errored"    // store error or cancellation, record untouched
)

// Scorer produces feedback for one session.
type Scorer interface {
	Score(ctx context.Context, in feedback.Input) (*session.Feedback, error)
}

// Config tunes the coordinator.
type Config struct {
	ImmediateDelay time.Duration
	// GeneratedBy is stamped on records this coordinator completes.
	GeneratedBy string
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ImmediateDelay: DefaultImmediateDelay,
		GeneratedBy:    session.GeneratedByServer,
	}
}

// Coordinator runs scoring attempts against a SessionRepo.
type Coordinator struct {
	repo   store.SessionRepo
	scorer Scorer
	cfg    Config
	log    zerolog.Logger

	wait func(ctx context.Context, d time.Duration) error

	life context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a Coordinator.
func New(repo store.SessionRepo, scorer Scorer, cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.GeneratedBy == "" {
		cfg.GeneratedBy = session.GeneratedByServer
	}
	life, stop := context.WithCancel(context.Background())
	return &Coordinator{
		repo:   repo,
		scorer: scorer,
		cfg:    cfg,
		log:    logger.With().Str("component", "completion").Logger(),
		wait:   sleep,
		life:   life,
		stop:   stop,
	}
}

// RunImmediate is the creation-time path: it defers to faster writers for
// ImmediateDelay and then scores the record if it is still pending.
func (c *Coordinator) RunImmediate(ctx context.Context, ref session.Ref) (Outcome, error) {
	rec, outcome, err := c.pending(ctx, ref)
	if rec == nil {
		return outcome, err
	}

	if err := c.wait(ctx, c.cfg.ImmediateDelay); err != nil {
		return OutcomeErrored, err
	}

	rec, outcome, err = c.pending(ctx, ref)
	if rec == nil {
		return outcome, err
	}
	return c.process(ctx, rec)
}

// RunSweep scores a record the sweeper already found pending past the
// grace window. There is no delay or re-check.
func (c *Coordinator) RunSweep(ctx context.Context, rec *session.Record) (Outcome, error) {
	return c.process(ctx, rec)
}

// Spawn runs RunImmediate in the background. The run is detached from any
// request; Stop cancels it and Wait blocks until it returns. Outcomes and
// errors only go to the log.
func (c *Coordinator) Spawn(ref session.Ref) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		outcome, err := c.RunImmediate(c.life, ref)
		ev := c.log.Info()
		if err != nil {
			ev = c.log.Error().Err(err)
		}
		ev.Str("user_id", ref.UserID).
			Str("session_id", ref.SessionID).
			Str("outcome", string(outcome)).
			Msg("immediate feedback run finished")
	}()
}

// Wait blocks until every spawned run has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stop cancels spawned runs and waits for them. Records they leave pending
// are picked up by the next sweep.
func (c *Coordinator) Stop() {
	c.stop()
	c.wg.Wait()
}

// pending loads ref and returns it only if it is still pending. Otherwise
// the outcome says why nothing should happen.
func (c *Coordinator) pending(ctx context.Context, ref session.Ref) (*session.Record, Outcome, error) {
	rec, err := c.repo.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, OutcomeSkipped, nil
	}
	if err != nil {
		return nil, OutcomeErrored, err
	}
	if rec.FeedbackStatus != session.StatusPending {
		return nil, OutcomeSkipped, nil
	}
	return rec, "", nil
}

func (c *Coordinator) process(ctx context.Context, rec *session.Record) (Outcome, error) {
	log := c.log.With().Str("user_id", rec.UserID).Str("session_id", rec.SessionID).Logger()

	fb, err := c.score(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the record pending for the next sweep.
			return OutcomeErrored, ctx.Err()
		}
		log.Error().Err(err).Str("category", rec.Category).Msg("feedback generation failed")
		return c.settle(c.repo.Fail(ctx, rec.Ref), OutcomeFailed)
	}

	return c.settle(c.repo.Complete(ctx, rec.Ref, *fb, c.cfg.GeneratedBy), OutcomeCompleted)
}

// score calls the scorer and turns a panic into an error.
func (c *Coordinator) score(ctx context.Context, rec *session.Record) (fb *session.Feedback, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	fb, err = c.scorer.Score(llm.WithSubject(ctx, rec.Ref.UserID), feedback.InputFrom(rec))
	if err == nil && fb == nil {
		err = errors.New("scorer returned no feedback")
	}
	return fb, err
}

// settle maps the result of a status write to an outcome.
func (c *Coordinator) settle(err error, want Outcome) (Outcome, error) {
	switch {
	case err == nil:
		return want, nil
	case errors.Is(err, store.ErrNotPending):
		return OutcomeSuperseded, nil
	case errors.Is(err, store.ErrNotFound):
		return OutcomeSkipped, nil
	default:
		return OutcomeErrored, err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
