// Package server wires the stores, services, transports, and HTTP surface
// together and owns their lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aquasense/internal/alerting"
	"aquasense/internal/bootstrap"
	"aquasense/internal/config"
	"aquasense/internal/handlers"
	"aquasense/internal/ingest"
	"aquasense/internal/logger"
	"aquasense/internal/middleware"
	"aquasense/internal/notify"
	"aquasense/internal/readings"
	"aquasense/internal/resolver"
	"aquasense/internal/state"
	"aquasense/internal/store"
	"aquasense/internal/transport/mqtt"
)

// Server is the high-level coordinator for ingestion, evaluation, and the
// query surface.
type Server struct {
	cfg        *config.Config
	store      store.Store
	locker     state.Locker
	notifier   *notify.Notifier
	subscriber *mqtt.Subscriber
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Server with the given config.
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts all components and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Msg("server starting")

	if err := s.initStore(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer s.store.Close()

	if err := s.initLocker(ctx); err != nil {
		return fmt.Errorf("init locker: %w", err)
	}
	defer s.locker.Close()

	if s.cfg.Bootstrap {
		if err := bootstrap.EnsureDefaultProfiles(ctx, s.store); err != nil {
			return fmt.Errorf("bootstrap defaults: %w", err)
		}
	}

	var sink alerting.OpenedSink
	if len(s.cfg.Notify.Brokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(s.cfg.Notify.Brokers, s.cfg.Notify.Topic)
		if err != nil {
			return fmt.Errorf("init notify publisher: %w", err)
		}
		defer publisher.Close()

		s.notifier = notify.NewNotifier(notify.Config{
			Publisher:    publisher,
			QueueSize:    s.cfg.Notify.QueueSize,
			Workers:      s.cfg.Notify.Workers,
			BatchSize:    s.cfg.Notify.BatchSize,
			BatchTimeout: s.cfg.Notify.BatchTimeout,
		})
		s.notifier.Start()
		defer s.notifier.Stop()
		sink = s.notifier.Enqueue
		log.Info().
			Strs("brokers", s.cfg.Notify.Brokers).
			Str("topic", s.cfg.Notify.Topic).
			Msg("alert notification publisher enabled")
	}

	res := resolver.New(s.store)
	reads := readings.New(s.store)
	engine := alerting.NewEngine(s.store, s.locker, sink)
	lifecycle := alerting.NewLifecycle(s.store)
	ingestSvc := ingest.New(res, reads, engine, s.store)

	if s.cfg.MQTT.BrokerURL != "" {
		subscriber, err := mqtt.NewSubscriber(mqtt.Config{
			BrokerURL: s.cfg.MQTT.BrokerURL,
			ClientID:  s.cfg.MQTT.ClientID,
			Username:  s.cfg.MQTT.Username,
			Password:  s.cfg.MQTT.Password,
			QoS:       s.cfg.MQTT.QoS,
		}, ingestSvc)
		if err != nil {
			return fmt.Errorf("init mqtt subscriber: %w", err)
		}
		s.subscriber = subscriber
		defer subscriber.Close()
	}

	s.initHTTPServer(handlers.New(handlers.Config{
		Store:     s.store,
		Ingest:    ingestSvc,
		Resolver:  res,
		Readings:  reads,
		Lifecycle: lifecycle,
	}))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return s.shutdown()
}

func (s *Server) initStore(ctx context.Context) error {
	log := logger.WithComponent("server")
	switch s.cfg.Storage.Backend {
	case "", "memory":
		s.store = store.NewMemory()
		log.Info().Msg("using in-memory store")
	case "postgres":
		pg, err := store.NewPostgres(ctx, s.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		s.store = pg
		log.Info().Msg("using postgres store")
	default:
		return fmt.Errorf("unknown storage backend %q", s.cfg.Storage.Backend)
	}
	return nil
}

func (s *Server) initLocker(ctx context.Context) error {
	log := logger.WithComponent("server")
	switch s.cfg.Locking.Backend {
	case "", "local":
		s.locker = state.NewKeyedLocker()
	case "redis":
		locker, err := state.NewRedisLocker(ctx, s.cfg.Locking.RedisAddr, s.cfg.Locking.LeaseTTL)
		if err != nil {
			return err
		}
		s.locker = locker
		log.Info().Str("addr", s.cfg.Locking.RedisAddr).Msg("using redis lock scope")
	default:
		return fmt.Errorf("unknown locking backend %q", s.cfg.Locking.Backend)
	}
	return nil
}

func (s *Server) initHTTPServer(api *handlers.API) {
	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr: s.cfg.HTTPAddr,
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}
	if s.notifier != nil {
		ns := s.notifier.Stats()
		stats["notifications_published"] = ns.Published
		stats["notifications_dropped"] = ns.Dropped
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timed out")
	}

	log.Info().Msg("server stopped")
	return nil
}
