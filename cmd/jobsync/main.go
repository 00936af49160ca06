package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jobsync-client/internal/config"
	"jobsync-client/internal/infra/api"
	"jobsync-client/internal/infra/i18n"
	"jobsync-client/internal/infra/logging"
	"jobsync-client/internal/infra/metrics"
	"jobsync-client/internal/infra/remote"
	"jobsync-client/internal/infra/store"
	"jobsync-client/internal/infra/visibility"
	"jobsync-client/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("jobsync stopped")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Durable store ----
	kv, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()

	scope, err := remote.Subject(cfg.Remote.Token)
	if err != nil {
		logger.Warn().Err(err).Msg("token has no usable subject; using the anonymous scope")
		scope = "anonymous"
	}
	keys := store.NewKeyspace(cfg.Store.Namespace, scope)
	pendingRepo := store.NewPendingJobRepo(kv, keys, logger)
	viewRepo := store.NewViewStateRepo(kv, keys, logger)
	sessionRepo := store.NewSessionRepo(kv, keys, logger)

	// ---- Remote ----
	clock := clockwork.NewRealClock()
	client := remote.NewClient(cfg.Remote, remote.WithClock(clock), remote.WithLogger(logger))

	// ---- Use cases ----
	vis := visibility.NewTracker()
	tr := i18n.MustDefault(cfg.Locale)
	tracker := usecase.NewJobTracker(client, pendingRepo, sessionRepo, usecase.NewHistoryCache(), tr,
		usecase.TrackerOptions{Poller: cfg.Poller, Clock: clock, Visibility: vis}, logger)
	defer tracker.Close()

	syncer := usecase.NewViewStateSyncer(client, viewRepo, cfg.ViewState, clock, logger)
	sessions := usecase.NewSessionUseCase(sessionRepo, syncer)

	usecase.NewRecoveryController(pendingRepo, sessionRepo, tracker, syncer, logger).Recover(ctx)

	srv := api.NewServer(api.Deps{
		Jobs:       tracker,
		Sessions:   sessions,
		Views:      syncer,
		Visibility: vis,
		Metrics:    metrics.Handler(),
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(gctx) })
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.API.Addr)
	})
	err = g.Wait()

	// one last push so edits made just before shutdown are not left local-only
	flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if ferr := syncer.Flush(flushCtx); ferr != nil {
		logger.Warn().Err(ferr).Msg("final view-state push failed; will retry on next start")
	}
	return err
}
