package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Backends and webhook modes
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"

	WebhookInline = "inline"
	WebhookQueue  = "queue"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Payments PaymentsConfig `yaml:"payments"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
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
	AutoMigrate     bool          `yaml:"auto_migrate"`
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
	BindingKey string           `yaml:"binding_key"`
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
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
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

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GatewayConfig holds the payment gateway credentials and callback urls
type GatewayConfig struct {
	BaseURL            string        `yaml:"base_url"`
	ConsumerKey        string        `yaml:"consumer_key"`
	ConsumerSecret     string        `yaml:"consumer_secret"`
	ShortCode          string        `yaml:"short_code"`
	PassKey            string        `yaml:"pass_key"`
	InitiatorName      string        `yaml:"initiator_name"`
	SecurityCredential string        `yaml:"security_credential"`
	CallbackURL        string        `yaml:"callback_url"`
	ResultURL          string        `yaml:"result_url"`
	TimeoutURL         string        `yaml:"timeout_url"`
	TransactionType    string        `yaml:"transaction_type"`
	CommandID          string        `yaml:"command_id"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// PaymentsConfig holds escrow flow settings
type PaymentsConfig struct {
	LedgerBackend   string         `yaml:"ledger_backend"`
	SessionBackend  string         `yaml:"session_backend"`
	SessionPath     string         `yaml:"session_path"`
	SessionTTL      time.Duration  `yaml:"session_ttl"`
	SweepInterval   time.Duration  `yaml:"sweep_interval"`
	InitiationLease time.Duration  `yaml:"initiation_lease"`
	WebhookMode     string         `yaml:"webhook_mode"`
	Inline          InlineDispatch `yaml:"inline"`
}

// InlineDispatch sizes the in-process webhook pool
type InlineDispatch struct {
	Workers  int `yaml:"workers"`
	Buffer   int `yaml:"buffer"`
	Overflow int `yaml:"overflow"`
}

// Load reads and parses the configuration file, then applies defaults and
// environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	return &config, nil
}

func (c *Config) applyDefaults() {
	p := &c.Payments
	if p.LedgerBackend == "" {
		p.LedgerBackend = BackendPostgres
	}
	if p.SessionBackend == "" {
		p.SessionBackend = BackendMemory
	}
	if p.SessionTTL == 0 {
		p.SessionTTL = 15 * time.Minute
	}
	if p.SweepInterval == 0 {
		p.SweepInterval = 5 * time.Minute
	}
	if p.InitiationLease == 0 {
		p.InitiationLease = 60 * time.Second
	}
	if p.WebhookMode == "" {
		p.WebhookMode = WebhookInline
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// applyEnv lets secrets stay out of the config file
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"GATEWAY_CONSUMER_KEY":        &c.Gateway.ConsumerKey,
		"GATEWAY_CONSUMER_SECRET":     &c.Gateway.ConsumerSecret,
		"GATEWAY_PASSKEY":             &c.Gateway.PassKey,
		"GATEWAY_SECURITY_CREDENTIAL": &c.Gateway.SecurityCredential,
		"DATABASE_PASSWORD":           &c.Database.Password,
		"RABBITMQ_PASSWORD":           &c.RabbitMQ.Password,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

// UsesPostgres reports whether the service needs a database connection
func (c *Config) UsesPostgres() bool {
	return c.Payments.LedgerBackend == BackendPostgres
}

// UsesQueue reports whether webhooks are published to RabbitMQ
func (c *Config) UsesQueue() bool {
	return c.Payments.WebhookMode == WebhookQueue
}

// ValidateAPIConfig checks the api-service configuration
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validatePayments(); err != nil {
		return err
	}

	if c.UsesPostgres() {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.UsesQueue() {
		if err := c.validateRabbitMQ(false); err != nil {
			return err
		}
	}

	if c.Gateway.ConsumerKey == "" || c.Gateway.ConsumerSecret == "" {
		return fmt.Errorf("gateway consumer key and secret are required")
	}

	if c.Gateway.ShortCode == "" {
		return fmt.Errorf("gateway short code is required")
	}

	if c.Gateway.CallbackURL == "" || c.Gateway.ResultURL == "" || c.Gateway.TimeoutURL == "" {
		return fmt.Errorf("gateway callback, result and timeout urls are required")
	}

	if c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("gateway request_timeout must be greater than 0")
	}

	// One initiation is a token fetch plus the request, each bounded by
	// request_timeout; the lease must outlive both
	if maxCall := 2 * c.Gateway.RequestTimeout; c.Payments.InitiationLease <= maxCall {
		return fmt.Errorf("initiation_lease %s must exceed twice the gateway request_timeout (%s)",
			c.Payments.InitiationLease, maxCall)
	}

	return nil
}

// ValidateWorkerConfig checks the worker-service configuration
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ProcessTimeout <= 0 {
		return fmt.Errorf("worker process_timeout must be greater than 0")
	}

	if c.Payments.LedgerBackend != BackendPostgres {
		return fmt.Errorf("worker requires the %s ledger backend", BackendPostgres)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ(true)
}

func (c *Config) validatePayments() error {
	p := c.Payments

	switch p.LedgerBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown ledger backend: %q", p.LedgerBackend)
	}

	switch p.SessionBackend {
	case BackendMemory:
	case BackendBolt:
		if p.SessionPath == "" {
			return fmt.Errorf("session_path is required for the %s session backend", BackendBolt)
		}
	default:
		return fmt.Errorf("unknown session backend: %q", p.SessionBackend)
	}

	switch p.WebhookMode {
	case WebhookInline:
	case WebhookQueue:
		// Queued events are applied by the worker, which only reads PostgreSQL
		if p.LedgerBackend != BackendPostgres {
			return fmt.Errorf("webhook mode %q requires the %s ledger backend", WebhookQueue, BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown webhook mode: %q", p.WebhookMode)
	}

	if p.SessionTTL <= 0 || p.SweepInterval <= 0 || p.InitiationLease <= 0 {
		return fmt.Errorf("session_ttl, sweep_interval and initiation_lease must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ(consumer bool) error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if consumer && c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
