package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camstream/internal/control"
	"camstream/internal/platform/config"
	"camstream/internal/platform/logger"
	"camstream/internal/platform/metrics"
	"camstream/internal/playback"
	"camstream/internal/relay"
	"camstream/internal/render"
	"camstream/internal/transport"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	kind, err := transport.ParseKind(cfg.TransportKind)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	creds := relay.StaticToken(cfg.RelayToken)
	client, err := relay.NewClient(cfg.RelayBaseURL, creds, relay.WithLogger(log))
	if err != nil {
		log.Error("invalid relay address", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	snap := render.NewSnapshot()
	newAdapter := func() (transport.Adapter, error) {
		return transport.New(kind, transport.Options{
			Credentials:  creds,
			StallTimeout: cfg.StallTimeout,
			Logger:       log,
		})
	}

	player := playback.NewPlayer(playback.Config{
		Source: relay.CameraSource{
			CameraID:        cfg.CameraID,
			PrimaryAddress:  cfg.PrimaryAddress,
			PlayableAddress: cfg.PlayableAddress,
		},
		Transport:         kind,
		HeartbeatInterval: cfg.HeartbeatInterval,
		EstablishTimeout:  cfg.EstablishTimeout,
		RetryMinInterval:  cfg.RetryMinInterval,
		Logger:            log,
		Metrics:           met,
	}, client, newAdapter, snap)

	h := control.NewHandler(player, snap, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	h.Routes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	log.Info("player starting",
		"port", cfg.Port,
		"camera_id", cfg.CameraID,
		"transport", string(kind),
		"relay", cfg.RelayBaseURL,
		"log_level", cfg.LogLevel,
	)
	if err := player.Play(ctx); err != nil {
		log.Warn("autoplay failed", "error", err)
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping playback")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		player.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("player stopped")
}
