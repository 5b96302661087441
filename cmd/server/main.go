package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"

	"github.com/bastion-ehs/be-ehs-hazards/internal/client"
	"github.com/bastion-ehs/be-ehs-hazards/internal/config"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
	"github.com/bastion-ehs/be-ehs-hazards/internal/handler"
	"github.com/bastion-ehs/be-ehs-hazards/internal/logger"
	"github.com/bastion-ehs/be-ehs-hazards/internal/middleware"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting EHS Hazards Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
		log.Info().Msg("Database migrations applied")
	}

	// Connect to NATS; notifications degrade gracefully without it.
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable; notifications disabled")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(nc, log)

	// Initialize repositories
	hazardRepo := repository.NewHazardRepository(db)
	configRepo := repository.NewWorkflowConfigRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	extensionRepo := repository.NewExtensionRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	// Initialize services
	hazardService := service.NewHazardService(hazardRepo, configRepo, auditRepo, directoryRepo, notifier, log)
	extensionService := service.NewExtensionService(hazardRepo, extensionRepo, auditRepo, directoryRepo, configRepo, notifier, log)
	configService := service.NewWorkflowConfigService(configRepo, directoryRepo, log)
	autoRejectService := service.NewAutoRejectService(hazardRepo, configRepo, auditRepo, directoryRepo, notifier, log)

	if cfg.Monitor.Enabled {
		monitor := service.NewOverdueMonitor(hazardRepo, notifier, cfg.Monitor.Interval, log)
		go monitor.Run(ctx)
	}

	// Setup HTTP routes
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpHandler := handler.NewHTTPHandler(hazardService, extensionService, configService, autoRejectService, log)
	httpHandler.Register(router)

	// Apply middleware
	var h http.Handler = router
	h = middleware.RequestID(h)
	h = middleware.Logger(&log)(h)
	h = middleware.Recovery(&log)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
