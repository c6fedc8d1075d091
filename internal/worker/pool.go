package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/metrics"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context, g *errgroup.Group) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	// In-flight jobs finish after shutdown starts; the job timeout still bounds them
	jobCtx := context.WithoutCancel(ctx)

	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.workerLoop(jobCtx, i)
			return nil
		})
	}
}

// workerLoop is the main processing loop for each worker goroutine.
// It returns when the dispatcher closes jobsChan.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for msg := range w.jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Int("attempt", msg.Attempt),
		)

		err := w.processJob(ctx, msg)
		w.handleResult(ctx, msg, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// handleResult acknowledges, retries or dead-letters a message based on
// the outcome of processJob.
func (w *Worker) handleResult(ctx context.Context, msg *jobMessage, err error) {
	logger := w.logger.With(
		slog.String("job_id", msg.JobID),
		slog.Int("attempt", msg.Attempt),
	)

	if err == nil {
		w.ack(logger, msg)
		return
	}

	if errors.Is(err, errClaimHeld) {
		w.deferDelivery(ctx, logger, msg)
		return
	}

	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		logger.Warn("Job failed on its input", slog.String("reason", err.Error()))

		failErr := w.failJob(ctx, msg.JobID, err.Error())
		if failErr == nil || errors.Is(failErr, domain.ErrInvalidTransition) {
			w.ack(logger, msg)
			return
		}
		// The failure could not be recorded; treat it like any transient error
		err = failErr
	}

	if msg.Attempt >= w.maxAttempts {
		reason := fmt.Sprintf("processing failed after %d attempts: retry budget exhausted", msg.Attempt)
		logger.Error("Job exhausted its retry budget",
			slog.Int("max_attempts", w.maxAttempts),
			slog.Any("error", err),
		)

		if failErr := w.failJob(ctx, msg.JobID, reason); failErr != nil && !errors.Is(failErr, domain.ErrInvalidTransition) {
			logger.Error("Failed to mark exhausted job as FAILED", slog.Any("error", failErr))
		}

		// The broker dead-letters the rejected message into the DLQ
		if nackErr := msg.delivery.Nack(false, false); nackErr != nil {
			logger.Error("Failed to NACK exhausted message", slog.Any("error", nackErr))
		}
		metrics.IncreaseDeadLetterMetric("retry_exhausted")
		return
	}

	logger.Warn("Job processing failed, scheduling retry",
		slog.Int("next_attempt", msg.Attempt+1),
		slog.Any("error", err),
	)

	retryCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()

	// A requeued delivery keeps its attempt number; it reclaims the job once the claim lease expires
	if retryErr := w.broker.Retry(retryCtx, msg.delivery, msg.Attempt+1); retryErr != nil {
		logger.Error("Failed to schedule retry, requeueing message", slog.Any("error", retryErr))
		if nackErr := msg.delivery.Nack(false, true); nackErr != nil {
			logger.Error("Failed to NACK message", slog.Any("error", nackErr))
		}
		return
	}

	metrics.IncreaseJobRetriesMetric()
	w.ack(logger, msg)
}

// deferDelivery parks a delivery in the retry queue under its current attempt
// number. It comes back after the retry delay and tries the claim again.
func (w *Worker) deferDelivery(ctx context.Context, logger *slog.Logger, msg *jobMessage) {
	retryCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()

	if err := w.broker.Retry(retryCtx, msg.delivery, msg.Attempt); err != nil {
		logger.Error("Failed to defer delivery, requeueing message", slog.Any("error", err))
		if nackErr := msg.delivery.Nack(false, true); nackErr != nil {
			logger.Error("Failed to NACK message", slog.Any("error", nackErr))
		}
		return
	}

	metrics.IncreaseDeferredMetric()
	w.ack(logger, msg)
}

func (w *Worker) ack(logger *slog.Logger, msg *jobMessage) {
	if err := msg.delivery.Ack(false); err != nil {
		logger.Error("Failed to ACK message", slog.Any("error", err))
	}
}

func (w *Worker) failJob(ctx context.Context, jobID, reason string) error {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()

	if err := w.jobs.FailJob(ioCtx, jobID, reason); err != nil {
		return err
	}

	metrics.IncreaseJobsFinishedMetric(string(domain.JobStatusFailed))
	return nil
}
