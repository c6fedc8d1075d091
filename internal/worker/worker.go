// Package worker consumes import job messages and runs each job through
// fetch, parse, validate, persist and finalize.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/validation"
)

// JobStore persists job state transitions
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID, workerID string, attempt int, lease time.Duration) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string, status domain.JobStatus, resultKey string) error
	FailJob(ctx context.Context, jobID, errorMessage string) error
}

// SchemaSource provides the attribute schema snapshot for a job
type SchemaSource interface {
	LoadSnapshot(ctx context.Context) (*domain.SchemaSnapshot, error)
}

// BlobStore reads uploaded files and writes result documents
type BlobStore interface {
	OpenUpload(ctx context.Context, sourceKey string) (io.ReadCloser, error)
	PutResult(ctx context.Context, resultKey string, data []byte) error
	ResultKey(jobID string) string
}

// Broker delivers job messages and schedules retries
type Broker interface {
	SetQos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Retry(ctx context.Context, d amqp.Delivery, attempt int) error
}

// ErrDeliveriesClosed is returned by Start when the broker stops delivering
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// errClaimHeld means another holder of the same attempt still has a live lease on the job
var errClaimHeld = errors.New("job is held by an unexpired claim")

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Jobs          JobStore
	Schema        SchemaSource
	Blobs         BlobStore
	Broker        Broker
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	IOTimeout     time.Duration
	MaxAttempts   int
	Validation    validation.Options
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	jobs          JobStore
	schema        SchemaSource
	blobs         BlobStore
	broker        Broker
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	ioTimeout     time.Duration
	claimLease    time.Duration
	maxAttempts   int
	validation    validation.Options
	jobsChan      chan *jobMessage
	now           func() time.Time
}

// jobMessage is a decoded delivery handed from the dispatcher to the pool
type jobMessage struct {
	delivery amqp.Delivery
	JobID    string
	Attempt  int
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		jobs:          cfg.Jobs,
		schema:        cfg.Schema,
		blobs:         cfg.Blobs,
		broker:        cfg.Broker,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		prefetchCount: prefetch,
		jobTimeout:    cfg.JobTimeout,
		ioTimeout:     cfg.IOTimeout,
		claimLease:    cfg.JobTimeout + cfg.IOTimeout,
		maxAttempts:   cfg.MaxAttempts,
		validation:    cfg.Validation,
		jobsChan:      make(chan *jobMessage),
		now:           time.Now,
	}
}

// Start consumes job messages until ctx is canceled. Jobs already picked up
// by a pool goroutine run to completion before Start returns.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("io_timeout", w.ioTimeout),
		slog.Int("max_attempts", w.maxAttempts),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	return w.run(ctx, deliveries)
}

func (w *Worker) run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(w.jobsChan)
		return w.startMessageDispatcher(ctx, deliveries)
	})

	w.spawnWorkerPool(ctx, g)

	err := g.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return err
}
