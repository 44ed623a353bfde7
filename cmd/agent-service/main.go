package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/api/handler"
	"github.com/cuongbtq/paid-agent/internal/agent/api/router"
	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/payment"
	"github.com/cuongbtq/paid-agent/internal/agent/queue"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
	"github.com/cuongbtq/paid-agent/internal/agent/worker"
	"github.com/cuongbtq/paid-agent/internal/config"
	"github.com/cuongbtq/paid-agent/migrations"
	"github.com/cuongbtq/paid-agent/shared/logger"
	"github.com/cuongbtq/paid-agent/shared/postgresql"
	"github.com/cuongbtq/paid-agent/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("AGENT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/agent-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.ValidateAgentConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting agent service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("agent_identifier", cfg.Agent.Identifier),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := initStore(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStore()

	jobQueue, err := initQueue(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer jobQueue.Close()

	payments, err := payment.NewClient(&payment.Config{
		BaseURL: cfg.Agent.PaymentURL,
		APIKey:  cfg.Agent.PaymentAPIKey,
		Network: cfg.Agent.Network,
		Logger:  appLogger.Component("payment"),
		Timeout: cfg.Agent.PaymentTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize payment client: %w", err)
	}

	emailService, err := initEmailService(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	validator, err := email.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to initialize input validator: %w", err)
	}

	jobWorker := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Component("worker"),
		Store:             store,
		Queue:             jobQueue,
		Executor:          emailService,
		Payments:          payments,
		WorkerID:          workerID(),
		Concurrency:       cfg.Worker.Concurrency,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})
	if err := jobWorker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	watcher := worker.NewWatcher(&worker.WatcherConfig{
		Logger:       appLogger.Component("watcher"),
		Store:        store,
		Payments:     payments,
		Publisher:    jobQueue,
		Interval:     cfg.Agent.WatchInterval,
		Batch:        cfg.Agent.WatchBatch,
		RequeueAfter: cfg.Agent.RequeueAfter,
	})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watcher.Run(ctx)
	}()

	price := []payment.Amount{{Amount: cfg.Agent.PriceAmount, Unit: cfg.Agent.PriceUnit}}
	r := initRouter(cfg, appLogger, &handler.Dependencies{
		Logger:            appLogger.Component("api"),
		Store:             store,
		Payments:          payments,
		Validator:         validator,
		AgentIdentifier:   cfg.Agent.Identifier,
		Price:             price,
		PayByWindow:       cfg.Agent.PayByWindow,
		SubmitResultAfter: cfg.Agent.SubmitResultAfter,
		MaxRetries:        cfg.Worker.MaxRetries,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Agent service is running", slog.String("address", addr))

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	case runErr = <-errChan:
		appLogger.Error("Server failed", slog.Any("error", runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	<-watcherDone

	done := make(chan struct{})
	go func() {
		jobWorker.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Agent service shutdown complete")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initStore opens the configured job store and returns its cleanup
func initStore(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (storage.Store, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		appLogger.Warn("Using in-memory job storage; jobs are lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	}

	db := cfg.Database
	client, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, appLogger.Component("postgresql"))
	if err != nil {
		return nil, nil, err
	}

	if err := client.Migrate(ctx, migrations.FS); err != nil {
		client.Close()
		return nil, nil, err
	}

	return storage.NewPostgresStore(client.DB(), appLogger.Component("storage")), func() { client.Close() }, nil
}

// initQueue connects the configured job queue
func initQueue(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (queue.Queue, error) {
	if cfg.Queue.Driver == config.DriverMemory {
		return queue.NewMemoryQueue(cfg.Queue.Buffer), nil
	}

	r := cfg.RabbitMQ
	client, err := rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:               r.Host,
		Port:               r.Port,
		User:               r.User,
		Password:           r.Password,
		VHost:              r.VHost,
		ExchangeName:       r.Exchange.Name,
		ExchangeType:       r.Exchange.Type,
		ExchangeDurable:    r.Exchange.Durable,
		ExchangeAutoDelete: r.Exchange.AutoDelete,
		QueueName:          r.Queue.Name,
		QueueDurable:       r.Queue.Durable,
		QueueAutoDelete:    r.Queue.AutoDelete,
		QueueExclusive:     r.Queue.Exclusive,
		RoutingKey:         r.RoutingKey,
		RetryAttempts:      r.Connection.RetryAttempts,
		RetryInterval:      r.Connection.RetryInterval,
		Heartbeat:          r.Connection.Heartbeat,
		ConnectionTimeout:  r.Connection.ConnectionTimeout,
		PublishRetries:     r.Publish.RetryAttempts,
		PublishRetryDelay:  r.Publish.RetryInterval,
		PublishBackoffMult: r.Publish.BackoffMultiplier,
	}, appLogger.Component("rabbitmq"))
	if err != nil {
		return nil, err
	}

	return queue.NewRabbitMQQueue(client, r.Consumer.PrefetchCount, appLogger.Component("queue")), nil
}

// initEmailService wires the optional Gemini enhancer and the Brevo sender
func initEmailService(cfg *config.Config, appLogger *logger.Logger) (*email.Service, error) {
	emailLogger := appLogger.Component("email")

	var enhancer email.Enhancer
	if cfg.Enhancer.APIKey == "" {
		emailLogger.Info("GOOGLE_API_KEY not set; skipping email enhancement")
	} else {
		gemini, err := email.NewGeminiEnhancer(email.GeminiConfig{
			APIKey:      cfg.Enhancer.APIKey,
			Model:       cfg.Enhancer.Model,
			BaseURL:     cfg.Enhancer.BaseURL,
			Temperature: cfg.Enhancer.Temperature,
			Timeout:     cfg.Enhancer.Timeout,
			Logger:      emailLogger,
		})
		if err != nil {
			return nil, err
		}
		enhancer = gemini
	}

	sender := email.NewBrevoSender(email.BrevoConfig{
		APIKey:      cfg.Email.BrevoAPIKey,
		URL:         cfg.Email.BrevoURL,
		SenderEmail: cfg.Email.SenderEmail,
		SenderName:  cfg.Email.SenderName,
		Timeout:     cfg.Email.Timeout,
	})
	if err := sender.Ready(); err != nil {
		emailLogger.Warn("Email delivery is not configured; jobs will fail", slog.Any("error", err))
	}

	return email.NewService(enhancer, sender, emailLogger), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, appLogger *logger.Logger, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	limiter := router.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	appLogger.Info("Rate limiting enabled",
		slog.Float64("requests_per_second", cfg.RateLimit.RequestsPerSecond),
		slog.Int("burst", cfg.RateLimit.Burst),
	)

	return router.SetupRouter(deps, limiter)
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "agent"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
