package config

import (
	"errors"
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

	// DefaultMaxAttempts bounds how many times a job message is delivered
	DefaultMaxAttempts = 5
	// DefaultRetryDelay is how long a retried message waits before redelivery
	DefaultRetryDelay = 10 * time.Second
	// DefaultIOTimeout bounds a single DB, blob or queue call
	DefaultIOTimeout = 30 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
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
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host            string           `yaml:"host"`
	Port            int              `yaml:"port"`
	User            string           `yaml:"user"`
	Password        string           `yaml:"password"`
	VHost           string           `yaml:"vhost"`
	Exchange        ExchangeConfig   `yaml:"exchange"`
	Queue           QueueConfig      `yaml:"queue"`
	RoutingKey      string           `yaml:"routing_key"`
	RetryQueue      string           `yaml:"retry_queue"`
	DeadLetterQueue string           `yaml:"dead_letter_queue"`
	Connection      ConnectionConfig `yaml:"connection"`
	Publish         PublishConfig    `yaml:"publish"`
	Consumer        ConsumerConfig   `yaml:"consumer"`
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
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// StorageConfig holds object store settings
type StorageConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Region            string        `yaml:"region"`
	AccessKey         string        `yaml:"access_key"`
	SecretKey         string        `yaml:"secret_key"`
	UseSSL            bool          `yaml:"use_ssl"`
	UploadBucket      string        `yaml:"upload_bucket"`
	ResultBucket      string        `yaml:"result_bucket"`
	UploadPrefix      string        `yaml:"upload_prefix"`
	ResultPrefix      string        `yaml:"result_prefix"`
	UploadURLExpiry   time.Duration `yaml:"upload_url_expiry"`
	DownloadURLExpiry time.Duration `yaml:"download_url_expiry"`
	CreateBuckets     bool          `yaml:"create_buckets"`
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
	Concurrency               int           `yaml:"concurrency"`
	JobTimeout                time.Duration `yaml:"job_timeout"`
	IOTimeout                 time.Duration `yaml:"io_timeout"`
	MaxAttempts               int           `yaml:"max_attempts"`
	RetryDelay                time.Duration `yaml:"retry_delay"`
	ShutdownTimeout           time.Duration `yaml:"shutdown_timeout"`
	MetricsPort               int           `yaml:"metrics_port"`
	DefaultShortTextMaxLength int           `yaml:"default_short_text_max_length"`
}

// Load reads and parses the configuration file. ${VAR} references in the
// file are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.RabbitMQ.Queue.Name != "" {
		if c.RabbitMQ.RetryQueue == "" {
			c.RabbitMQ.RetryQueue = c.RabbitMQ.Queue.Name + ".retry"
		}
		if c.RabbitMQ.DeadLetterQueue == "" {
			c.RabbitMQ.DeadLetterQueue = c.RabbitMQ.Queue.Name + ".dlq"
		}
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = DefaultMaxAttempts
	}
	if c.Worker.RetryDelay == 0 {
		c.Worker.RetryDelay = DefaultRetryDelay
	}
	if c.Worker.IOTimeout == 0 {
		c.Worker.IOTimeout = DefaultIOTimeout
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

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

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required")
	}

	if c.Storage.UploadBucket == "" || c.Storage.ResultBucket == "" {
		return fmt.Errorf("storage upload_bucket and result_bucket are required")
	}

	return nil
}

// ValidateAPIConfig checks the settings needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateWorkerConfig checks the settings needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	var errs []error

	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker concurrency must be greater than 0"))
	}

	if c.Worker.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("worker job_timeout must be greater than 0"))
	}

	if c.Worker.IOTimeout <= 0 || (c.Worker.JobTimeout > 0 && c.Worker.IOTimeout > c.Worker.JobTimeout) {
		errs = append(errs, fmt.Errorf("worker io_timeout must be greater than 0 and not exceed job_timeout"))
	}

	if c.Worker.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("worker max_attempts must be greater than 0"))
	}

	if c.Worker.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("worker retry_delay must be greater than 0"))
	}

	if c.Worker.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("worker shutdown_timeout must be greater than 0"))
	}

	if c.Worker.MetricsPort != 0 && (c.Worker.MetricsPort < MinPort || c.Worker.MetricsPort > MaxPort) {
		errs = append(errs, fmt.Errorf("invalid worker metrics_port: %d (must be between %d and %d)", c.Worker.MetricsPort, MinPort, MaxPort))
	}

	if c.Worker.DefaultShortTextMaxLength < 0 {
		errs = append(errs, fmt.Errorf("worker default_short_text_max_length must not be negative"))
	}

	return errors.Join(errs...)
}
