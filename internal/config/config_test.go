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
			name:     "minimal config file",
			filePath: "testdata/minimal.yaml",
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
			require.NotNil(t, cfg)
			assert.Equal(t, "bg-uploader", cfg.App.Name)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Setenv("UPLOADER_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout, "missing keys keep their default")

	assert.Equal(t, "uploads_db", cfg.Database.Database)
	assert.Equal(t, "s3cret", cfg.Database.Password)

	assert.Equal(t, "uploads_exchange", cfg.RabbitMQ.Exchange.Name)
	assert.True(t, cfg.RabbitMQ.Exchange.Durable)
	assert.Equal(t, "upload_jobs", cfg.RabbitMQ.Queue.Name)
	assert.Equal(t, 20, cfg.RabbitMQ.Consumer.PrefetchCount)
	assert.Equal(t, "bg-uploader", cfg.RabbitMQ.Consumer.Tag)

	assert.Equal(t, 4, cfg.Uploader.PoolSize)
	assert.Equal(t, BackendPostgres, cfg.Uploader.Scheduler)
	assert.Equal(t, BackendAMQP, cfg.Uploader.Notifier)
	assert.Equal(t, 48*time.Hour, cfg.Uploader.Retention)
	assert.Equal(t, time.Hour, cfg.Uploader.PruneInterval)

	assert.False(t, cfg.Transport.FollowRedirects)
	assert.True(t, cfg.Transport.RetryOnConnectionFailure)
	assert.Equal(t, 45*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Transport.ReadTimeout)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendMemory, cfg.Uploader.Scheduler)
	assert.Equal(t, BackendMemory, cfg.Uploader.Notifier)
	assert.Zero(t, cfg.Uploader.PoolSize)
	assert.True(t, cfg.Transport.FollowRedirects)
	assert.Equal(t, 45*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.Transport.ReadTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		errString string
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name:      "invalid server port",
			modify:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "negative pool size",
			modify:    func(c *Config) { c.Uploader.PoolSize = -1 },
			errString: "pool_size must not be negative",
		},
		{
			name:      "unknown scheduler",
			modify:    func(c *Config) { c.Uploader.Scheduler = "redis" },
			errString: "unsupported uploader scheduler",
		},
		{
			name:      "postgres scheduler without host",
			modify:    func(c *Config) { c.Uploader.Scheduler = BackendPostgres },
			errString: "database host is required",
		},
		{
			name: "postgres scheduler without database name",
			modify: func(c *Config) {
				c.Uploader.Scheduler = BackendPostgres
				c.Database.Host = "localhost"
			},
			errString: "database name is required",
		},
		{
			name: "postgres scheduler",
			modify: func(c *Config) {
				c.Uploader.Scheduler = BackendPostgres
				c.Database.Host = "localhost"
				c.Database.Database = "uploads_db"
			},
		},
		{
			name:      "unknown notifier",
			modify:    func(c *Config) { c.Uploader.Notifier = "kafka" },
			errString: "unsupported uploader notifier",
		},
		{
			name:      "amqp notifier without host",
			modify:    func(c *Config) { c.Uploader.Notifier = BackendAMQP },
			errString: "rabbitmq host is required",
		},
		{
			name: "amqp notifier without queue",
			modify: func(c *Config) {
				c.Uploader.Notifier = BackendAMQP
				c.RabbitMQ.Host = "localhost"
				c.RabbitMQ.Exchange.Name = "uploads_exchange"
			},
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "zero connect timeout",
			modify:    func(c *Config) { c.Transport.ConnectTimeout = 0 },
			errString: "connect_timeout must be greater than 0",
		},
		{
			name:      "zero read timeout",
			modify:    func(c *Config) { c.Transport.ReadTimeout = 0 },
			errString: "read_timeout must be greater than 0",
		},
		{
			name:      "negative retry delay",
			modify:    func(c *Config) { c.Transport.RetryDelay = -time.Second },
			errString: "retry_delay must not be negative",
		},
		{
			name:      "negative retention",
			modify:    func(c *Config) { c.Uploader.Retention = -time.Hour },
			errString: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
