package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/paid-agent/internal/config"
	"github.com/cuongbtq/paid-agent/internal/purchase"
	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
	"github.com/cuongbtq/paid-agent/internal/report"
	"github.com/cuongbtq/paid-agent/shared/logger"
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

	defaultConfigPath := os.Getenv("PURCHASE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/purchase/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	recipient := flag.String("recipient", "user@example.com", "Recipient email address")
	subject := flag.String("subject", "Test Email Subject", "Email subject")
	body := flag.String("body", "This is a test email sent via Masumi-paid agent.", "Email body")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	cfg.ApplyDefaults()

	out := report.New(os.Stdout)
	endpoints := report.Endpoints{
		AgentURL:   cfg.Purchase.AgentURL,
		PaymentURL: cfg.Purchase.PaymentURL,
		Network:    cfg.Purchase.Network,
	}
	out.Intro(endpoints)

	ready, err := checkConfig(cfg, out, endpoints)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	orchestrator, err := initOrchestrator(&cfg.Purchase, appLogger)
	if err != nil {
		return err
	}

	input, err := json.Marshal(map[string]string{
		"recipient_email": *recipient,
		"subject":         *subject,
		"body":            *body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Starting purchase",
		slog.String("agent", cfg.Purchase.AgentURL),
		slog.String("network", cfg.Purchase.Network),
		slog.String("recipient", *recipient),
	)

	summary, err := orchestrator.Run(ctx, purchase.Request{
		PurchaserID: cfg.Purchase.PurchaserIdentifier,
		Input:       input,
	})
	if err != nil {
		out.Failure(summary, err)
		return err
	}

	out.Summary(summary)

	if summary.Outcome() != domain.OutcomeCompleted {
		return fmt.Errorf("job %s finished as %s", summary.Job.JobID, summary.Outcome())
	}
	return nil
}

// checkConfig validates the purchaser settings. A missing credential prints the
// setup guide and reports not ready without an error.
func checkConfig(cfg *config.Config, out *report.Reporter, endpoints report.Endpoints) (bool, error) {
	err := cfg.ValidatePurchaseConfig()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrMissingCredential):
		out.SetupGuide(endpoints, cfg.Purchase.AdminToken)
		return false, nil
	default:
		return false, fmt.Errorf("invalid config: %w", err)
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.TimeOnly,
	})
}

// initOrchestrator wires the agent client, payment client and monitor
func initOrchestrator(cfg *config.PurchaseConfig, appLogger *logger.Logger) (*purchase.Orchestrator, error) {
	compute, err := purchase.NewComputeClient(&purchase.ComputeConfig{
		BaseURL:       cfg.AgentURL,
		Logger:        appLogger.Component("agent_client"),
		HealthTimeout: cfg.HealthTimeout,
		CreateTimeout: cfg.CreateTimeout,
		StatusTimeout: cfg.StatusTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent client: %w", err)
	}

	payer, err := purchase.NewPaymentClient(&purchase.PaymentConfig{
		BaseURL: cfg.PaymentURL,
		APIKey:  cfg.APIKey,
		Logger:  appLogger.Component("payment_client"),
		Timeout: cfg.PaymentTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment client: %w", err)
	}

	monitor := purchase.NewMonitor(&purchase.MonitorConfig{
		Querier:      compute,
		Clock:        purchase.SystemClock(),
		Logger:       appLogger.Component("monitor"),
		MaxWait:      cfg.MaxWait,
		PollInterval: cfg.PollInterval,
	})

	return purchase.New(&purchase.Config{
		Compute: compute,
		Payer:   payer,
		Watcher: monitor,
		Logger:  appLogger.Component("orchestrator"),
		Network: cfg.Network,
	}), nil
}
