package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/product-import/internal/blobstore"
	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/validation"
)

// fakeJobStore mirrors the compare-and-set rules of the SQL job store
type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	getErr  error
	failErr error
	claims  int
	now     time.Time
}

func newFakeJobStore(jobs ...*domain.Job) *fakeJobStore {
	s := &fakeJobStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, j := range jobs {
		s.jobs[j.JobID] = j
	}
	return s
}

func (s *fakeJobStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) ClaimJob(_ context.Context, jobID, workerID string, attempt int, lease time.Duration) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobAlreadyClaimed
	}
	leaseExpired := s.now.Sub(job.UpdatedAt) > lease
	claimable := job.Status == domain.JobStatusPending ||
		(job.Status == domain.JobStatusProcessing && (job.Attempts < attempt || leaseExpired))
	if !claimable {
		return nil, domain.ErrJobAlreadyClaimed
	}

	s.claims++
	job.Status = domain.JobStatusProcessing
	job.Attempts = attempt
	job.WorkerID = workerID
	job.UpdatedAt = s.now
	cp := *job
	return &cp, nil
}

// advance moves the store clock forward
func (s *fakeJobStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *fakeJobStore) CompleteJob(_ context.Context, jobID string, status domain.JobStatus, resultKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing || !job.Status.CanTransitionTo(status) ||
		!status.HasResult() || resultKey == "" {
		return domain.ErrInvalidTransition
	}
	job.Status = status
	job.ResultKey = resultKey
	job.UpdatedAt = s.now
	return nil
}

func (s *fakeJobStore) FailJob(_ context.Context, jobID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	job, ok := s.jobs[jobID]
	if !ok || !job.Status.CanTransitionTo(domain.JobStatusFailed) {
		return domain.ErrInvalidTransition
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errorMessage
	job.UpdatedAt = s.now
	return nil
}

func (s *fakeJobStore) job(jobID string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

type fakeSchema struct {
	defs    []domain.AttributeDefinition
	skipped []domain.SkippedAttribute
	err     error
}

func (f *fakeSchema) LoadSnapshot(context.Context) (*domain.SchemaSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SchemaSnapshot{Definitions: f.defs, Skipped: f.skipped}, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	uploads map[string][]byte
	results map[string][]byte
	openErr error
	putErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploads: make(map[string][]byte), results: make(map[string][]byte)}
}

func (f *fakeBlobs) OpenUpload(_ context.Context, sourceKey string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	data, ok := f.uploads[sourceKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrObjectNotFound, sourceKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) PutResult(_ context.Context, resultKey string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putErr != nil {
		return f.putErr
	}
	f.results[resultKey] = data
	return nil
}

func (f *fakeBlobs) ResultKey(jobID string) string {
	return blobstore.ResultKey("processed-files", jobID)
}

type fakeBroker struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	retries    []int
	retryErr   error
	qos        int
}

func (f *fakeBroker) SetQos(prefetchCount int) error {
	f.qos = prefetchCount
	return nil
}

func (f *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeBroker) Retry(_ context.Context, _ amqp.Delivery, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.retryErr != nil {
		return f.retryErr
	}
	f.retries = append(f.retries, attempt)
	return nil
}

// fakeAcknowledger records how a delivery was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func (a *fakeAcknowledger) settled() (acks, nacks int, requeue bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.requeue
}

type testEnv struct {
	worker *Worker
	jobs   *fakeJobStore
	schema *fakeSchema
	blobs  *fakeBlobs
	broker *fakeBroker
}

func newTestEnv(t *testing.T, jobs ...*domain.Job) *testEnv {
	t.Helper()

	env := &testEnv{
		jobs:   newFakeJobStore(jobs...),
		schema: &fakeSchema{defs: productSchema()},
		blobs:  newFakeBlobs(),
		broker: &fakeBroker{deliveries: make(chan amqp.Delivery)},
	}

	env.worker = NewWorker(&Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:        env.jobs,
		Schema:      env.schema,
		Blobs:       env.blobs,
		Broker:      env.broker,
		WorkerID:    "worker-test",
		Concurrency: 2,
		JobTimeout:  5 * time.Second,
		IOTimeout:   time.Second,
		MaxAttempts: 5,
		Validation:  validation.Options{DefaultShortTextMaxLength: 255},
	})
	env.worker.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	return env
}

func productSchema() []domain.AttributeDefinition {
	maxLen := 10
	return []domain.AttributeDefinition{
		{ID: "a1", Name: "sku", DataType: domain.DataTypeShortText, Required: true, MaxLength: &maxLen},
		{ID: "a2", Name: "price", DataType: domain.DataTypeNumber},
		{ID: "a3", Name: "color", DataType: domain.DataTypeSingleSelect, Options: []string{"red", "blue"}},
	}
}

func pendingJob(jobID, sourceKey string) *domain.Job {
	return &domain.Job{JobID: jobID, SourceKey: sourceKey, Status: domain.JobStatusPending}
}

func newDelivery(body string, attempt int) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(body),
		Headers:      amqp.Table{"x-attempt": int32(attempt)},
	}, ack
}

func jobMessageFor(jobID string, attempt int) (*jobMessage, *fakeAcknowledger) {
	d, ack := newDelivery(fmt.Sprintf(`{"jobId":%q,"sourceKey":"ignored"}`, jobID), attempt)
	return &jobMessage{delivery: d, JobID: jobID, Attempt: attempt}, ack
}
