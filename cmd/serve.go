package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FurqatMashrabjonov/speech-coach/internal/api"
	"github.com/FurqatMashrabjonov/speech-coach/internal/completion"
	"github.com/FurqatMashrabjonov/speech-coach/internal/config"
	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the creation trigger and the scheduled sweeper",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().Bool("no-sweep", false, "Disable the scheduled sweeper")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if off, _ := cmd.Flags().GetBool("no-sweep"); off {
		cfg.Sweeper.Enabled = false
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	scorer, err := rt.scorer(ctx)
	if err != nil {
		return err
	}

	coord := completion.New(rt.repo, scorer, cfg.Completion(), log)
	sw := sweeper.New(rt.repo, coord, rt.locker(), cfg.Sweep(), log)

	var onCreate func(session.Ref)
	if cfg.Trigger == config.TriggerAPI {
		onCreate = coord.Spawn
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(api.Options{
			Repo:     rt.repo,
			OnCreate: onCreate,
			Sweeper:  sw,
			Logger:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("trigger", cfg.Trigger).Bool("sweeper", cfg.Sweeper.Enabled).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			return ignoreCanceled(sw.Run(gctx))
		})
	}

	if cfg.Trigger == config.TriggerFirestore {
		g.Go(func() error {
			return ignoreCanceled(rt.fs.Watch(gctx, coord.Spawn))
		})
	}

	err = g.Wait()
	log.Info().Msg("shutting down, waiting for in-flight feedback runs")
	drain(coord, cfg.Server.ShutdownTimeout)
	return err
}

// drain lets in-flight immediate runs finish within timeout, then cancels
// the rest. Cancelled records stay pending for the next sweep.
func drain(coord *completion.Coordinator, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	coord.Stop()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
