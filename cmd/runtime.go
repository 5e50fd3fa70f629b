package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/FurqatMashrabjonov/speech-coach/internal/config"
	"github.com/FurqatMashrabjonov/speech-coach/internal/feedback"
	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store/firestore"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store/memory"
	"github.com/FurqatMashrabjonov/speech-coach/internal/sweeper"
)

// runtime holds the collaborators a command opened. Close releases them in
// reverse order.
type runtime struct {
	cfg    config.Config
	log    zerolog.Logger
	repo   store.SessionRepo
	events store.EventRepo // nil unless the SQLite backend is in use
	fs     *firestore.Store

	closers []func() error
}

func openRuntime(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: logger}

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		path, err := sqlitePath(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		s, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		rt.closers = append(rt.closers, s.Close)
		rt.repo = s.SessionRepo()
		rt.events = s.EventRepo()
		logger.Debug().Str("path", path).Msg("using sqlite store")
	case config.BackendMemory:
		rt.repo = memory.New()
	case config.BackendFirestore:
		fs, err := firestore.New(ctx, cfg.Storage.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		rt.closers = append(rt.closers, fs.Close)
		rt.repo = fs
		rt.fs = fs
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return rt, nil
}

// sqlitePath is storage.path (creating its directory) or the per-user
// default.
func sqlitePath(cfg config.Config) (string, error) {
	if cfg.Storage.Path == "" {
		return store.DefaultDBPath()
	}
	return cfg.Storage.Path, store.EnsureDir(cfg.Storage.Path)
}

// scorer builds the model-backed scorer. It fails without an API key.
func (rt *runtime) scorer(ctx context.Context) (*feedback.Scorer, error) {
	if err := rt.cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(ctx, rt.cfg.LLM, rt.events, rt.log)
	if err != nil {
		return nil, err
	}
	rt.log.Info().Str("provider", rt.cfg.LLM.Provider).Str("model", provider.ModelID()).Msg("scoring provider ready")
	return feedback.NewScorer(provider, feedback.Config{
		MaxTokens:   rt.cfg.LLM.MaxTokens,
		Temperature: rt.cfg.LLM.Temperature,
	}), nil
}

// locker returns the Redis sweep lease when Redis is configured.
func (rt *runtime) locker() sweeper.Locker {
	if rt.cfg.Redis.Addr == "" {
		return sweeper.NopLocker{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	rt.closers = append(rt.closers, client.Close)
	return sweeper.NewRedisLocker(client, rt.cfg.Redis.LockKey)
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
