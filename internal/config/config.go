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

// Scheduler and notifier backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendAMQP     = "amqp"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Uploader  UploaderConfig  `yaml:"uploader"`
	Transport TransportConfig `yaml:"transport"`
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
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// UploaderConfig holds dispatch and scheduling settings
type UploaderConfig struct {
	PoolSize        int           `yaml:"pool_size"` // 0 means one worker per CPU
	Scheduler       string        `yaml:"scheduler"`
	Notifier        string        `yaml:"notifier"`
	NotifyBuffer    int           `yaml:"notify_buffer"`
	Retention       time.Duration `yaml:"retention"`
	PruneInterval   time.Duration `yaml:"prune_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TransportConfig holds HTTP upload client settings
type TransportConfig struct {
	FollowRedirects          bool          `yaml:"follow_redirects"`
	RetryOnConnectionFailure bool          `yaml:"retry_on_connection_failure"`
	ConnectTimeout           time.Duration `yaml:"connect_timeout"`
	ReadTimeout              time.Duration `yaml:"read_timeout"`
	RetryDelay               time.Duration `yaml:"retry_delay"`
}

// Default returns the configuration used for keys missing from the file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:     5672,
			VHost:    "/",
			Exchange: ExchangeConfig{Type: "direct", Durable: true},
			Queue:    QueueConfig{Durable: true},
			Connection: ConnectionConfig{
				RetryAttempts: 5,
				RetryInterval: 2 * time.Second,
				Heartbeat:     10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts: 3,
				RetryInterval: 100 * time.Millisecond,
			},
			Consumer: ConsumerConfig{
				Tag:           "bg-uploader",
				PrefetchCount: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Uploader: UploaderConfig{
			Scheduler:       BackendMemory,
			Notifier:        BackendMemory,
			NotifyBuffer:    1024,
			Retention:       24 * time.Hour,
			PruneInterval:   time.Hour,
			ShutdownTimeout: 30 * time.Second,
		},
		Transport: TransportConfig{
			FollowRedirects:          true,
			RetryOnConnectionFailure: true,
			ConnectTimeout:           45 * time.Second,
			ReadTimeout:              90 * time.Second,
			RetryDelay:               time.Second,
		},
	}
}

// Load reads the configuration file over the defaults. ${VAR} references
// are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks the configuration, including the backends it selects
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Uploader.PoolSize < 0 {
		return fmt.Errorf("uploader pool_size must not be negative")
	}

	switch c.Uploader.Scheduler {
	case BackendMemory:
	case BackendPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported uploader scheduler: %q (must be %s or %s)", c.Uploader.Scheduler, BackendMemory, BackendPostgres)
	}

	switch c.Uploader.Notifier {
	case BackendMemory:
	case BackendAMQP:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported uploader notifier: %q (must be %s or %s)", c.Uploader.Notifier, BackendMemory, BackendAMQP)
	}

	if c.Uploader.Retention < 0 || c.Uploader.PruneInterval < 0 {
		return fmt.Errorf("uploader retention and prune_interval must not be negative")
	}

	if c.Transport.ConnectTimeout <= 0 {
		return fmt.Errorf("transport connect_timeout must be greater than 0")
	}

	if c.Transport.ReadTimeout <= 0 {
		return fmt.Errorf("transport read_timeout must be greater than 0")
	}

	if c.Transport.RetryDelay < 0 {
		return fmt.Errorf("transport retry_delay must not be negative")
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

func (c *Config) validateRabbitMQ() error {
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

	return nil
}
