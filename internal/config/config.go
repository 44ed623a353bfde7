package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Backend names for storage.driver and queue.driver
const (
	DriverPostgres = "postgres"
	DriverRabbitMQ = "rabbitmq"
	DriverMemory   = "memory"
)

// Hosted services used when no URL is configured
const (
	DefaultAgentURL          = "https://emailagent-production-cc02.up.railway.app"
	DefaultPaymentServiceURL = "https://masumi-payment-service-production-8680.up.railway.app/api/v1"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Purchase  PurchaseConfig  `yaml:"purchase"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Queue     QueueBackend    `yaml:"queue"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Worker    WorkerConfig    `yaml:"worker"`
	Agent     AgentConfig     `yaml:"agent"`
	Email     EmailConfig     `yaml:"email"`
	Enhancer  EnhancerConfig  `yaml:"enhancer"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// PurchaseConfig holds the purchaser-side orchestrator settings
type PurchaseConfig struct {
	AgentURL            string        `yaml:"agent_url"`
	PaymentURL          string        `yaml:"payment_url"`
	APIKey              string        `yaml:"api_key"`
	AdminToken          string        `yaml:"admin_token"`
	Network             string        `yaml:"network"`
	PurchaserIdentifier string        `yaml:"purchaser_identifier"`
	HealthTimeout       time.Duration `yaml:"health_timeout"`
	CreateTimeout       time.Duration `yaml:"create_timeout"`
	PaymentTimeout      time.Duration `yaml:"payment_timeout"`
	StatusTimeout       time.Duration `yaml:"status_timeout"`
	MaxWait             time.Duration `yaml:"max_wait"`
	PollInterval        time.Duration `yaml:"poll_interval"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig holds the per-client request limit of the agent API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StorageConfig selects the job store backend
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// QueueBackend selects the job queue backend
type QueueBackend struct {
	Driver string `yaml:"driver"`
	Buffer int    `yaml:"buffer"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// WorkerConfig holds job execution settings of the agent
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// AgentConfig holds the seller-side settings of the agent
type AgentConfig struct {
	Identifier        string        `yaml:"identifier"`
	Network           string        `yaml:"network"`
	PaymentURL        string        `yaml:"payment_url"`
	PaymentAPIKey     string        `yaml:"payment_api_key"`
	PaymentTimeout    time.Duration `yaml:"payment_timeout"`
	PriceAmount       string        `yaml:"price_amount"`
	PriceUnit         string        `yaml:"price_unit"`
	PayByWindow       time.Duration `yaml:"pay_by_window"`
	SubmitResultAfter time.Duration `yaml:"submit_result_after"`
	WatchInterval     time.Duration `yaml:"watch_interval"`
	WatchBatch        int           `yaml:"watch_batch"`
	RequeueAfter      time.Duration `yaml:"requeue_after"`
}

// EmailConfig holds the Brevo delivery settings
type EmailConfig struct {
	BrevoAPIKey string        `yaml:"brevo_api_key"`
	BrevoURL    string        `yaml:"brevo_url"`
	SenderEmail string        `yaml:"sender_email"`
	SenderName  string        `yaml:"sender_name"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EnhancerConfig holds the Gemini enhancement settings
type EnhancerConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides file values with environment variables, when set
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"AGENT_API_URL":        &c.Purchase.AgentURL,
		"PAYMENT_SERVICE_URL":  &c.Purchase.PaymentURL,
		"PURCHASER_API_KEY":    &c.Purchase.APIKey,
		"NETWORK":              &c.Purchase.Network,
		"PURCHASER_IDENTIFIER": &c.Purchase.PurchaserIdentifier,
		"AGENT_IDENTIFIER":     &c.Agent.Identifier,
		"BREVO_API_KEY":        &c.Email.BrevoAPIKey,
		"SENDER_EMAIL":         &c.Email.SenderEmail,
		"SENDER_NAME":          &c.Email.SenderName,
		"GOOGLE_API_KEY":       &c.Enhancer.APIKey,
		"GEMINI_MODEL_NAME":    &c.Enhancer.Model,
		"DATABASE_PASSWORD":    &c.Database.Password,
		"RABBITMQ_PASSWORD":    &c.RabbitMQ.Password,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	// The seller key doubles as the admin token shown in the setup guide
	if v := os.Getenv("PAYMENT_API_KEY"); v != "" {
		c.Agent.PaymentAPIKey = v
		c.Purchase.AdminToken = v
	}
	if v := os.Getenv("PAYMENT_SERVICE_URL"); v != "" {
		c.Agent.PaymentURL = v
	}
	if v := os.Getenv("NETWORK"); v != "" {
		c.Agent.Network = v
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	return nil
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "console")
	setString(&c.Logging.Output, "stderr")

	p := &c.Purchase
	setString(&p.AgentURL, DefaultAgentURL)
	setString(&p.PaymentURL, DefaultPaymentServiceURL)
	setString(&p.Network, "Preprod")
	setString(&p.PurchaserIdentifier, "2ccab9ca3c8fd56f")
	setDuration(&p.HealthTimeout, 10*time.Second)
	setDuration(&p.CreateTimeout, 30*time.Second)
	setDuration(&p.PaymentTimeout, 60*time.Second)
	setDuration(&p.StatusTimeout, 10*time.Second)
	setDuration(&p.MaxWait, 300*time.Second)
	setDuration(&p.PollInterval, 5*time.Second)

	s := &c.Server
	setInt(&s.Port, 8000)
	setDuration(&s.ReadTimeout, 15*time.Second)
	setDuration(&s.WriteTimeout, 15*time.Second)
	setDuration(&s.IdleTimeout, 60*time.Second)
	setDuration(&s.ShutdownTimeout, 30*time.Second)

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	setInt(&c.RateLimit.Burst, 10)

	setString(&c.Storage.Driver, DriverMemory)
	setString(&c.Queue.Driver, DriverMemory)
	setInt(&c.Queue.Buffer, 100)

	d := &c.Database
	setInt(&d.Port, 5432)
	setString(&d.SSLMode, "disable")
	setInt(&d.MaxOpenConns, 10)
	setInt(&d.MaxIdleConns, 5)
	setDuration(&d.ConnMaxLifetime, 30*time.Minute)
	setDuration(&d.ConnMaxIdleTime, 5*time.Minute)

	r := &c.RabbitMQ
	setInt(&r.Port, 5672)
	setString(&r.VHost, "/")
	setString(&r.Exchange.Type, "direct")
	setInt(&r.Connection.RetryAttempts, 5)
	setDuration(&r.Connection.RetryInterval, 2*time.Second)
	setDuration(&r.Connection.Heartbeat, 10*time.Second)
	setInt(&r.Consumer.PrefetchCount, 1)

	w := &c.Worker
	setInt(&w.Concurrency, 2)
	setDuration(&w.JobTimeout, 2*time.Minute)
	setDuration(&w.HeartbeatInterval, 30*time.Second)
	setInt(&w.MaxRetries, 3)
	setDuration(&w.ShutdownTimeout, 30*time.Second)

	a := &c.Agent
	setString(&a.Network, "Preprod")
	setDuration(&a.PaymentTimeout, 30*time.Second)
	setString(&a.PriceAmount, "5000000")
	setDuration(&a.PayByWindow, 12*time.Hour)
	setDuration(&a.SubmitResultAfter, 24*time.Hour)
	setDuration(&a.WatchInterval, 10*time.Second)
	setInt(&a.WatchBatch, 50)
	setDuration(&a.RequeueAfter, time.Minute)

	setString(&c.Email.BrevoURL, "https://api.brevo.com/v3/smtp/email")
	setString(&c.Email.SenderName, "Email Service")
	setDuration(&c.Email.Timeout, 15*time.Second)

	setString(&c.Enhancer.Model, "gemini-1.5-flash")
	setString(&c.Enhancer.BaseURL, "https://generativelanguage.googleapis.com/v1beta")
	if c.Enhancer.Temperature <= 0 {
		c.Enhancer.Temperature = 0.7
	}
	setDuration(&c.Enhancer.Timeout, 20*time.Second)
}

// ValidatePurchaseConfig checks the settings the purchase orchestrator needs.
// A missing purchaser key is domain.ErrMissingCredential.
func (c *Config) ValidatePurchaseConfig() error {
	p := c.Purchase
	if p.AgentURL == "" {
		return fmt.Errorf("purchase agent_url is required (AGENT_API_URL)")
	}
	if p.PaymentURL == "" {
		return fmt.Errorf("purchase payment_url is required (PAYMENT_SERVICE_URL)")
	}
	if p.Network == "" {
		return fmt.Errorf("purchase network is required (NETWORK)")
	}
	if p.PollInterval <= 0 || p.MaxWait <= 0 {
		return fmt.Errorf("purchase poll_interval and max_wait must be greater than 0")
	}
	if p.PollInterval > p.MaxWait {
		return fmt.Errorf("purchase poll_interval %s exceeds max_wait %s", p.PollInterval, p.MaxWait)
	}
	if p.APIKey == "" {
		return fmt.Errorf("%w: PURCHASER_API_KEY is not set", domain.ErrMissingCredential)
	}
	return nil
}

// ValidateAgentConfig checks the settings the agent service needs
func (c *Config) ValidateAgentConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Agent.Identifier == "" {
		return fmt.Errorf("agent identifier is required (AGENT_IDENTIFIER)")
	}
	if c.Agent.PaymentURL == "" {
		return fmt.Errorf("agent payment_url is required (PAYMENT_SERVICE_URL)")
	}
	if c.Agent.PaymentAPIKey == "" {
		return fmt.Errorf("agent payment_api_key is required (PAYMENT_API_KEY)")
	}
	if _, err := strconv.ParseUint(c.Agent.PriceAmount, 10, 64); err != nil {
		return fmt.Errorf("agent price_amount must be a non-negative integer: %q", c.Agent.PriceAmount)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Queue.Driver {
	case DriverMemory:
	case DriverRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	return nil
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
