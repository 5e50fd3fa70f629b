// Package sweeper retries records the immediate path left pending.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/FurqatMashrabjonov/speech-coach/internal/completion"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

const (
	DefaultInterval    = 15 * time.Minute
	DefaultGraceWindow = 2 * time.Minute
	DefaultBatchSize   = 50
)

// Runner scores one pending record. *completion.Coordinator satisfies it.
type Runner interface {
	RunSweep(ctx context.Context, rec *session.Record) (completion.Outcome, error)
}

// Config tunes the sweep schedule.
type Config struct {
	Interval time.Duration
	// GraceWindow is how old a pending record must be before the sweeper
	// touches it. It must exceed the coordinator's immediate delay.
	GraceWindow time.Duration
	BatchSize   int
	// Concurrency bounds in-flight records per run. Zero means BatchSize.
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		GraceWindow: DefaultGraceWindow,
		BatchSize:   DefaultBatchSize,
	}
}

// Report counts how one run ended.
type Report struct {
	Matched    int  `json:"matched"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	Superseded int  `json:"superseded"`
	Skipped    int  `json:"skipped"`
	Errored    int  `json:"errored"`
	LockHeld   bool `json:"lockHeld,omitempty"`
}

// Succeeded is the number of records whose run settled without error.
func (r Report) Succeeded() int {
	return r.Matched - r.Errored
}

func (r *Report) add(o completion.Outcome) {
	switch o {
	case completion.OutcomeCompleted:
		r.Completed++
	case completion.OutcomeFailed:
		r.Failed++
	case completion.OutcomeSuperseded:
		r.Superseded++
	case completion.OutcomeSkipped:
		r.Skipped++
	default:
		r.Errored++
	}
}

// Sweeper finds stale pending records and hands them to a Runner.
type Sweeper struct {
	repo   store.SessionRepo
	runner Runner
	locker Locker
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a Sweeper. A nil locker means NopLocker.
func New(repo store.SessionRepo, runner Runner, locker Locker, cfg Config, logger zerolog.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = def.GraceWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.BatchSize
	}
	if locker == nil {
		locker = NopLocker{}
	}
	return &Sweeper{
		repo:   repo,
		runner: runner,
		locker: locker,
		cfg:    cfg,
		log:    logger.With().Str("component", "sweeper").Logger(),
		now:    time.Now,
	}
}

// RunOnce performs a single sweep, bounded by Interval (the lease TTL). A
// failure on one record never affects the others; the returned error
// covers only the lease and the query.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	release, err := s.locker.Acquire(ctx, s.cfg.Interval)
	if errors.Is(err, ErrLockHeld) {
		s.log.Info().Msg("sweep lease held elsewhere, skipping run")
		report.LockHeld = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("acquire sweep lease: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("release sweep lease")
		}
	}()

	// The run may not outlive its lease. Records cut off here stay pending.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.GraceWindow)
	recs, err := s.repo.ListPending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending sessions: %w", err)
	}
	report.Matched = len(recs)
	if len(recs) == 0 {
		s.log.Info().Int("matched", 0).Msg("no pending sessions to retry")
		return report, nil
	}
	s.log.Info().Int("matched", len(recs)).Time("cutoff", cutoff).Msg("retrying pending sessions")

	outcomes := make([]completion.Outcome, len(recs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			outcomes[i] = s.runOne(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report.add(o)
	}
	s.log.Info().
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Errored).
		Int("completed", report.Completed).
		Int("marked_failed", report.Failed).
		Int("superseded", report.Superseded).
		Int("skipped", report.Skipped).
		Msg("sweep finished")
	return report, nil
}

// runOne isolates a single record: its error or panic is logged and
// counted, never returned to the group.
func (s *Sweeper) runOne(ctx context.Context, rec *session.Record) (outcome completion.Outcome) {
	log := s.log.With().Str("user_id", rec.UserID).Str("session_id", rec.SessionID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sweep run panicked")
			outcome = completion.OutcomeErrored
		}
	}()

	outcome, err := s.runner.RunSweep(ctx, rec)
	if err != nil {
		log.Error().Err(err).Str("outcome", string(outcome)).Msg("sweep run failed")
		return completion.OutcomeErrored
	}
	log.Debug().Str("outcome", string(outcome)).Msg("sweep run finished")
	return outcome
}

// Run sweeps every Interval until ctx ends. The first sweep happens one
// interval after the call.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
