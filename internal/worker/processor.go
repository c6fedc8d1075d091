package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/product-import/internal/blobstore"
	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/metrics"
	"github.com/cuongbtq/product-import/internal/tabular"
	"github.com/cuongbtq/product-import/internal/validation"
)

// processJob runs one delivery of a job. A nil error means the message can
// be acknowledged, either because the job finished or because the delivery
// is stale and was discarded.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	logger := w.logger.With(
		slog.String("job_id", msg.JobID),
		slog.Int("attempt", msg.Attempt),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	// Step 1: Idempotency guard
	job, err := w.getJob(jobCtx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("Discarding message for unknown job")
			metrics.IncreaseDiscardedMetric("unknown_job")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}

	if job.Status.IsTerminal() {
		logger.Info("Discarding message for finished job", slog.String("status", string(job.Status)))
		metrics.IncreaseDiscardedMetric("terminal")
		return nil
	}

	// Step 2: Claim (PENDING -> PROCESSING)
	job, err = w.claimJob(jobCtx, msg)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			return w.resolveLostClaim(jobCtx, logger, msg)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	metrics.JobStarted()
	defer metrics.JobDone()

	start := w.now()
	status, err := w.executeJob(jobCtx, job)
	if err != nil {
		return err
	}

	metrics.IncreaseJobsFinishedMetric(string(status))
	metrics.ObserveJobDuration(string(status), w.now().Sub(start).Seconds())

	logger.Info("Job finished",
		slog.String("status", string(status)),
		slog.Duration("duration", w.now().Sub(start)),
	)
	return nil
}

// resolveLostClaim decides what to do with a delivery whose claim failed.
// A finished job or a job owned by a later attempt makes the delivery stale.
// A job still held by this same attempt number is either a duplicate of a
// live delivery or the leftover of a crashed or requeued one; the delivery
// is kept alive with errClaimHeld until the holder finishes or its lease
// runs out and the claim succeeds.
func (w *Worker) resolveLostClaim(ctx context.Context, logger *slog.Logger, msg *jobMessage) error {
	job, err := w.getJob(ctx, msg.JobID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		return errClaimHeld
	}

	if err != nil || job.Status.IsTerminal() || job.Attempts > msg.Attempt {
		logger.Info("Job already claimed by a newer delivery or finished, skipping")
		metrics.IncreaseDiscardedMetric("claimed")
		return nil
	}

	logger.Info("Job held by an unexpired claim, deferring delivery",
		slog.String("worker_id", job.WorkerID),
	)
	return errClaimHeld
}

// executeJob runs steps 3 to 7 for a claimed job and returns its terminal status
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	// Step 3: Schema snapshot
	snapshot, err := w.loadSchema(ctx)
	if err != nil {
		return "", err
	}

	// Step 4: Fetch and parse
	table, err := w.fetchTable(ctx, job.SourceKey)
	if err != nil {
		return "", err
	}

	// Step 5: Validate
	result := validation.Validate(table.Rows, table.Headers, snapshot.Definitions, w.validation)

	metrics.AddRowsProcessed(result.TotalRows)
	for _, rowErr := range result.RowErrors {
		metrics.IncreaseRowErrorsMetric(string(rowErr.ErrorKind))
	}

	// Step 6: Decide and persist
	if len(result.MatchedColumns) == 0 {
		return "", domain.NewInputError("no column header matched any attribute definition", nil)
	}
	if result.TotalRows == 0 {
		return "", domain.NewInputError("file contains a header row but no data rows", nil)
	}

	status := decideStatus(result)
	resultKey := w.blobs.ResultKey(job.JobID)

	doc := newResultDocument(job, status, result, w.now())
	doc.SkippedAttributes = snapshot.Skipped
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode result document: %w", err)
	}

	if err := w.putResult(ctx, resultKey, data); err != nil {
		return "", domain.NewRetryableError(err)
	}

	// Step 7: Finalize (PROCESSING -> terminal)
	if err := w.completeJob(ctx, job.JobID, status, resultKey); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Another delivery finished the job first; its result blob has the same key
			w.logger.Info("Job already finalized elsewhere", slog.String("job_id", job.JobID))
			return status, nil
		}
		return "", domain.NewRetryableError(fmt.Errorf("failed to finalize job: %w", err))
	}

	return status, nil
}

func (w *Worker) getJob(ctx context.Context, jobID string) (*domain.Job, error) {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()
	return w.jobs.GetJob(ioCtx, jobID)
}

func (w *Worker) claimJob(ctx context.Context, msg *jobMessage) (*domain.Job, error) {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()
	return w.jobs.ClaimJob(ioCtx, msg.JobID, w.workerID, msg.Attempt, w.claimLease)
}

func (w *Worker) completeJob(ctx context.Context, jobID string, status domain.JobStatus, resultKey string) error {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()
	return w.jobs.CompleteJob(ioCtx, jobID, status, resultKey)
}

func (w *Worker) putResult(ctx context.Context, resultKey string, data []byte) error {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()
	return w.blobs.PutResult(ioCtx, resultKey, data)
}

func (w *Worker) loadSchema(ctx context.Context) (*domain.SchemaSnapshot, error) {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()

	snapshot, err := w.schema.LoadSnapshot(ioCtx)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to load attribute schema: %w", err))
	}
	if len(snapshot.Definitions) == 0 {
		if len(snapshot.Skipped) > 0 {
			return nil, domain.NewInputError(
				fmt.Sprintf("no usable attribute definitions are configured (%d invalid)", len(snapshot.Skipped)), nil)
		}
		return nil, domain.NewInputError("no attribute definitions are configured", nil)
	}
	if len(snapshot.Skipped) > 0 {
		w.logger.Warn("Validating without invalid attribute definitions",
			slog.Int("skipped", len(snapshot.Skipped)),
		)
	}
	return snapshot, nil
}

// fetchTable opens the source file and parses it. The whole read runs
// under a single io timeout.
func (w *Worker) fetchTable(ctx context.Context, sourceKey string) (*tabular.Table, error) {
	ioCtx, cancel := context.WithTimeout(ctx, w.ioTimeout)
	defer cancel()

	r, err := w.blobs.OpenUpload(ioCtx, sourceKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			return nil, domain.NewInputError("source file could not be fetched", err)
		}
		return nil, domain.NewRetryableError(err)
	}
	defer r.Close()

	table, err := tabular.Parse(r, tabular.FormatFromKey(sourceKey))
	if err != nil {
		if tabular.IsInputError(err) {
			return nil, domain.NewInputError("source file could not be parsed", err)
		}
		return nil, domain.NewRetryableError(err)
	}
	return table, nil
}
