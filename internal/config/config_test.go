package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "escrow_db", cfg.Database.Database)
			assert.Equal(t, "payments", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "payments.callback.*", cfg.RabbitMQ.BindingKey)
			assert.Equal(t, "174379", cfg.Gateway.ShortCode)
			assert.Equal(t, WebhookQueue, cfg.Payments.WebhookMode)
			assert.True(t, cfg.UsesQueue())
			assert.True(t, cfg.UsesPostgres())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/memory_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Payments.LedgerBackend)
	assert.Equal(t, BackendMemory, cfg.Payments.SessionBackend)
	assert.Equal(t, WebhookInline, cfg.Payments.WebhookMode)
	assert.Equal(t, 15*time.Minute, cfg.Payments.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Payments.SweepInterval)
	assert.Equal(t, 60*time.Second, cfg.Payments.InitiationLease)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Gateway.RequestTimeout)

	require.NoError(t, cfg.ValidateAPIConfig())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_CONSUMER_SECRET", "from-env")
	t.Setenv("DATABASE_PASSWORD", "db-from-env")
	t.Setenv("RABBITMQ_PASSWORD", "")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Gateway.ConsumerSecret)
	assert.Equal(t, "db-from-env", cfg.Database.Password)
	// Empty values do not clear the file setting
	assert.Equal(t, "guest", cfg.RabbitMQ.Password)
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"missing exchange", func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, "exchange name is required"},
		{"unknown ledger", func(c *Config) { c.Payments.LedgerBackend = "redis" }, "unknown ledger backend"},
		{"bolt without path", func(c *Config) { c.Payments.SessionPath = "" }, "session_path is required"},
		{"queue needs postgres", func(c *Config) { c.Payments.LedgerBackend = BackendMemory }, "requires the postgres ledger"},
		{"unknown webhook mode", func(c *Config) { c.Payments.WebhookMode = "kafka" }, "unknown webhook mode"},
		{"missing gateway secret", func(c *Config) { c.Gateway.ConsumerSecret = "" }, "consumer key and secret"},
		{"missing result url", func(c *Config) { c.Gateway.ResultURL = "" }, "urls are required"},
		{"negative lease", func(c *Config) { c.Payments.InitiationLease = -time.Second }, "must be greater than 0"},
		{"lease shorter than gateway call", func(c *Config) {
			c.Gateway.RequestTimeout = 20 * time.Second
			c.Payments.InitiationLease = 30 * time.Second
		}, "must exceed twice the gateway request_timeout"},
		{"lease equal to two gateway timeouts", func(c *Config) {
			c.Gateway.RequestTimeout = 30 * time.Second
			c.Payments.InitiationLease = 60 * time.Second
		}, "must exceed twice the gateway request_timeout"},
		{"lease just above two gateway timeouts", func(c *Config) {
			c.Gateway.RequestTimeout = 29 * time.Second
			c.Payments.InitiationLease = 60 * time.Second
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("testdata/valid_config.yaml")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestValidateAPIConfig_InlineSkipsRabbitMQ(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	cfg.Payments.WebhookMode = WebhookInline
	cfg.RabbitMQ = RabbitMQConfig{}
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "concurrency must be greater than 0"},
		{"zero timeout", func(c *Config) { c.Worker.ProcessTimeout = 0 }, "process_timeout must be greater than 0"},
		{"memory ledger", func(c *Config) { c.Payments.LedgerBackend = BackendMemory }, "requires the postgres ledger"},
		{"missing queue", func(c *Config) { c.RabbitMQ.Queue.Name = "" }, "queue name is required"},
		{"missing database name", func(c *Config) { c.Database.Database = "" }, "database name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("testdata/valid_config.yaml")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
