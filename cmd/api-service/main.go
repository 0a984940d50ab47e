package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/api/handler"
	"github.com/cuongbtq/escrow-pay/internal/api/router"
	"github.com/cuongbtq/escrow-pay/internal/config"
	"github.com/cuongbtq/escrow-pay/internal/payment/dispatch"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
	"github.com/cuongbtq/escrow-pay/internal/payment/service"
	"github.com/cuongbtq/escrow-pay/internal/payment/session"
	"github.com/cuongbtq/escrow-pay/internal/payment/sweeper"
	"github.com/cuongbtq/escrow-pay/shared/logger"
	"github.com/cuongbtq/escrow-pay/shared/postgresql"
	"github.com/cuongbtq/escrow-pay/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("ledger_backend", cfg.Payments.LedgerBackend),
		slog.String("session_backend", cfg.Payments.SessionBackend),
		slog.String("webhook_mode", cfg.Payments.WebhookMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecks := make(map[string]func(ctx context.Context) error)

	// Initialize job ledger
	var jobLedger ledger.Ledger
	var dbClient *postgresql.Client
	if cfg.UsesPostgres() {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		appLogger.Info("Database connection established")

		pg := ledger.NewPostgres(dbClient.GetDB(), appLogger.Logger)
		if cfg.Database.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate ledger: %w", err)
			}
		}
		jobLedger = pg
		healthChecks["database"] = dbClient.HealthCheck
	} else {
		appLogger.Warn("Using in-memory job ledger, state is lost on restart")
		jobLedger = ledger.NewMemory(appLogger.Logger)
	}

	// Initialize session store
	sessions, err := initSessionStore(&cfg.Payments)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer sessions.Close()

	// Initialize payment gateway
	gatewayClient, err := initGateway(&cfg.Gateway, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	svcCfg := &service.Config{
		Ledger:          jobLedger,
		Sessions:        sessions,
		Gateway:         gatewayClient,
		Logger:          appLogger.Logger,
		InitiationLease: cfg.Payments.InitiationLease,
		SessionTTL:      cfg.Payments.SessionTTL,
	}
	reconciler := service.NewReconciler(svcCfg)

	// Webhooks are reconciled in process, or published for the worker service
	inline := dispatch.NewInline(dispatch.InlineConfig{
		Applier:  reconciler,
		Logger:   appLogger.Logger,
		Workers:  cfg.Payments.Inline.Workers,
		Buffer:   cfg.Payments.Inline.Buffer,
		Overflow: int64(cfg.Payments.Inline.Overflow),
	})
	inline.Start(ctx)
	defer inline.Stop()

	var dispatcher dispatch.Dispatcher = inline
	if cfg.UsesQueue() {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")

		dispatcher = dispatch.NewQueue(rabbitClient, inline, appLogger.Logger)
		healthChecks["rabbitmq"] = func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return fmt.Errorf("rabbitmq not connected")
			}
			return nil
		}
	}

	// Start session expiry sweeper
	sessionSweeper := sweeper.New(sweeper.Config{
		Store:    sessions,
		Logger:   appLogger.Logger,
		Interval: cfg.Payments.SweepInterval,
		Expiry:   cfg.Payments.SessionTTL,
	})
	if err := sessionSweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	defer sessionSweeper.Stop()

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:       appLogger.Logger,
		Ledger:       jobLedger,
		Collector:    service.NewCollector(svcCfg),
		Disburser:    service.NewDisburser(svcCfg),
		Closer:       service.NewCloser(svcCfg),
		Dispatcher:   dispatcher,
		HealthChecks: healthChecks,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes a publish-only RabbitMQ client; the worker
// service owns the queue and its binding
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initSessionStore opens the pending collection session store
func initSessionStore(cfg *config.PaymentsConfig) (session.Store, error) {
	if cfg.SessionBackend == config.BackendBolt {
		return session.NewBolt(cfg.SessionPath)
	}

	return session.NewMemory(), nil
}

// initGateway builds the mobile-money gateway client
func initGateway(cfg *config.GatewayConfig, logger *slog.Logger) (*gateway.Daraja, error) {
	return gateway.NewDaraja(gateway.Options{
		BaseURL:            cfg.BaseURL,
		ConsumerKey:        cfg.ConsumerKey,
		ConsumerSecret:     cfg.ConsumerSecret,
		ShortCode:          cfg.ShortCode,
		PassKey:            cfg.PassKey,
		InitiatorName:      cfg.InitiatorName,
		SecurityCredential: cfg.SecurityCredential,
		CallbackURL:        cfg.CallbackURL,
		ResultURL:          cfg.ResultURL,
		TimeoutURL:         cfg.TimeoutURL,
		TransactionType:    cfg.TransactionType,
		CommandID:          cfg.CommandID,
		RequestTimeout:     cfg.RequestTimeout,
		Logger:             logger,
	})
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
