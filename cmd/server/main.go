package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"

	"github.com/waveforge/storefront/internal"
	"github.com/waveforge/storefront/internal/email"
	"github.com/waveforge/storefront/internal/events"
	"github.com/waveforge/storefront/internal/handler"
	"github.com/waveforge/storefront/internal/middleware"
	"github.com/waveforge/storefront/internal/postgres"
	"github.com/waveforge/storefront/internal/router"
	"github.com/waveforge/storefront/internal/routes"
	"github.com/waveforge/storefront/internal/service"
	"github.com/waveforge/storefront/internal/telemetry"
	"github.com/waveforge/storefront/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize repository
	store := postgres.NewOrderStore(pool)

	// Initialize metrics, sharing one registry between the HTTP middleware
	// and the business collectors
	metrics := middleware.NewMetrics("storefront", nil)
	business := telemetry.NewBusinessMetrics("storefront", metrics.Registry())

	// Initialize event publisher. NATS is optional: without it lifecycle
	// events are logged and no notification worker runs.
	var publisher events.Publisher
	var natsConn *nats.Conn
	if cfg.Nats.URL != "" {
		natsConn, err = nats.Connect(cfg.Nats.URL,
			nats.Name("storefront-server"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsConn.Close()
		publisher = events.NewNATSPublisher(natsConn)
		logger.Info("Connected to NATS", "url", cfg.Nats.URL)
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Warn("NATS_URL not set, lifecycle events will only be logged")
	}

	// Initialize order service
	orderService := service.NewOrderService(store, publisher, business, logger, service.Config{
		HomeCountry: cfg.Store.HomeCountry,
		MaxNotesLen: cfg.Store.MaxNotesLen,
	})

	// Initialize notification worker when the event bus is available
	if natsConn != nil {
		sender := email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)

		emailService, err := email.NewService(sender, cfg.Email.From, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize email service: %w", err)
		}

		w := worker.NewWorker(natsConn, emailService, business, worker.Config{
			Queue: cfg.Nats.Queue,
		}, logger)
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification worker stopped", "error", err)
			}
		}()
	}

	// Build route dependencies
	orderHandler := handler.NewOrderHandler(orderService, logger)
	deps := routes.APIDeps{
		OrderHandler:   orderHandler,
		HealthHandler:  handler.Health(pool),
		MetricsHandler: metrics.Handler(),
	}

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
		middleware.RequestLogging,
	)
	routes.RegisterAPIRoutes(r, deps)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
