package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/product-import/internal/blobstore"
	"github.com/cuongbtq/product-import/internal/config"
	"github.com/cuongbtq/product-import/internal/jobstore"
	"github.com/cuongbtq/product-import/internal/metrics"
	"github.com/cuongbtq/product-import/internal/schema"
	"github.com/cuongbtq/product-import/internal/validation"
	"github.com/cuongbtq/product-import/internal/worker"
	"github.com/cuongbtq/product-import/shared/logger"
	"github.com/cuongbtq/product-import/shared/postgresql"
	"github.com/cuongbtq/product-import/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := newWorkerID()
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, cfg.Worker.RetryDelay, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	blobClient, err := initBlobStore(&cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Jobs:          jobstore.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Schema:        schema.NewRepository(dbClient.GetDB(), appLogger.Logger),
		Blobs:         blobClient,
		Broker:        rabbitClient,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
		IOTimeout:     cfg.Worker.IOTimeout,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		Validation: validation.Options{
			DefaultShortTextMaxLength: cfg.Worker.DefaultShortTextMaxLength,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	workerDone := make(chan struct{})
	g.Go(func() error {
		defer close(workerDone)
		return workerInstance.Start(gctx)
	})

	if cfg.Worker.MetricsPort != 0 {
		metricsServer := metrics.NewServer(cfg.Worker.MetricsPort, appLogger.Logger, map[string]metrics.HealthFunc{
			"database": dbClient.HealthCheck,
			"rabbitmq": rabbitClient.HealthCheck,
			"storage":  blobClient.HealthCheck,
		})
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
	}

	appLogger.Info("Worker service started successfully")

	<-gctx.Done()
	appLogger.Info("Shutting down worker, waiting for in-flight jobs",
		slog.Duration("shutdown_timeout", cfg.Worker.ShutdownTimeout),
	)

	select {
	case <-workerDone:
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
		return nil
	}

	if err := g.Wait(); err != nil {
		appLogger.Error("Worker stopped with error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker stopped gracefully")
	return nil
}

// newWorkerID identifies this process in job claims
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
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

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		ApplicationName: "worker-service",
		ConnectTimeout:  cfg.ConnectTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client with the work, retry and dead-letter queues
func initRabbitMQ(cfg *config.RabbitMQConfig, retryDelay time.Duration, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryQueueName:     cfg.RetryQueue,
		RetryDelay:         retryDelay,
		DeadLetterQueue:    cfg.DeadLetterQueue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initBlobStore initializes the object store client
func initBlobStore(cfg *config.StorageConfig, logger *slog.Logger) (*blobstore.Client, error) {
	return blobstore.NewClient(logger,
		blobstore.WithEndpoint(cfg.Endpoint),
		blobstore.WithRegion(cfg.Region),
		blobstore.WithAccessKey(cfg.AccessKey),
		blobstore.WithSecretKey(cfg.SecretKey),
		blobstore.WithSSL(cfg.UseSSL),
		blobstore.WithBuckets(cfg.UploadBucket, cfg.ResultBucket),
		blobstore.WithPrefixes(cfg.UploadPrefix, cfg.ResultPrefix),
	)
}
