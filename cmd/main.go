// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anshulpatel/event-waitlist-service/internal/config"
	"github.com/anshulpatel/event-waitlist-service/internal/database"
	"github.com/anshulpatel/event-waitlist-service/internal/handler"
	"github.com/anshulpatel/event-waitlist-service/internal/metrics"
	"github.com/anshulpatel/event-waitlist-service/internal/notify"
	"github.com/anshulpatel/event-waitlist-service/internal/repository"
	"github.com/anshulpatel/event-waitlist-service/internal/service"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ────────────────────────────────────────────────────────
	var store repository.Store
	if cfg.Database.MemoryStore {
		log.Info("using in-memory store")
		store = repository.NewMemory(cfg.Engine.LockWait)
	} else {
		if err := database.Migrate(cfg.Database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pool, err := database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		log.Info("connected to postgres", "host", cfg.Database.Host, "db", cfg.Database.Name)
		store = repository.NewPostgres(pool, cfg.Engine.LockWait)
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	m := metrics.New(prometheus.DefaultRegisterer)

	sinks := []notify.Sink{notify.LogSink{Log: log}}
	if cfg.Redis.URL != "" {
		client, err := notify.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		log.Info("publishing notification intents to redis", "channel", cfg.Redis.Channel)
		sinks = append(sinks, notify.RedisSink{Client: client, Channel: cfg.Redis.Channel})
	}
	emitter := notify.NewEmitter(cfg.Engine.NotifyQueueSize, log, m, sinks...)

	svc := service.New(store, emitter, m, log, cfg.Engine.CountsTTL)
	regHandler := handler.NewRegistrationHandler(svc)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(log))
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/events", func(r chi.Router) {
		r.Post("/", regHandler.CreateEvent)
		r.Get("/", regHandler.ListEvents)
		r.Get("/{id}", regHandler.GetEvent)
		r.Post("/{id}/register", regHandler.Register)
		r.Get("/{id}/registrations", regHandler.ListRegistrations)
		r.Get("/{id}/counts", regHandler.GetCounts)
	})
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/{id}/cancel", regHandler.Cancel)
		r.Post("/{id}/promote", regHandler.Promote)
		r.Post("/{id}/demote", regHandler.Demote)
		r.Post("/{id}/attended", regHandler.MarkAttended)
	})

	// ── 4. Run server and notification worker until shutdown ─────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := emitter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
