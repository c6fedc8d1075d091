package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/product-import/internal/domain"
)

const (
	testJobID     = "6f1c2b9e-3d4a-4f5b-8c7d-1e2f3a4b5c6d"
	testSourceKey = "user-uploads/8a6e/products.csv"
)

func runJob(env *testEnv, attempt int) *fakeAcknowledger {
	msg, ack := jobMessageFor(testJobID, attempt)
	ctx := context.Background()
	env.worker.handleResult(ctx, msg, env.worker.processJob(ctx, msg))
	return ack
}

func readResult(t *testing.T, env *testEnv) map[string]any {
	t.Helper()

	data, ok := env.blobs.results[env.blobs.ResultKey(testJobID)]
	require.True(t, ok, "result document not uploaded")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestProcessJob_TerminalStatus(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		wantStatus   domain.JobStatus
		wantValid    int
		wantErrors   int
		wantIgnored  []string
		wantErrorMsg string
	}{
		{
			name:       "all rows valid",
			file:       "sku,price,color\nA1,10,red\nA2,2.5,blue\n",
			wantStatus: domain.JobStatusCompleted,
			wantValid:  2,
		},
		{
			name:       "some rows invalid",
			file:       "sku,price,color\nA1,abc,red\nA2,3,blue\n",
			wantStatus: domain.JobStatusCompletedWithIssues,
			wantValid:  1,
			wantErrors: 1,
		},
		{
			name:        "unknown column ignored",
			file:        "sku,price,notes\nA1,10,hello\n",
			wantStatus:  domain.JobStatusCompletedWithIssues,
			wantValid:   1,
			wantIgnored: []string{"notes"},
		},
		{
			name:       "every row invalid",
			file:       "sku,price\n,1\nABCDEFGHIJKLMNOP,2\n",
			wantStatus: domain.JobStatusCompletedWithIssues,
			wantErrors: 2,
		},
		{
			name:         "empty file",
			file:         "",
			wantStatus:   domain.JobStatusFailed,
			wantErrorMsg: "source file could not be parsed: file is empty",
		},
		{
			name:         "header without data rows",
			file:         "sku,price\n",
			wantStatus:   domain.JobStatusFailed,
			wantErrorMsg: "file contains a header row but no data rows",
		},
		{
			name:         "no header matches",
			file:         "foo,bar\n1,2\n",
			wantStatus:   domain.JobStatusFailed,
			wantErrorMsg: "no column header matched any attribute definition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
			env.blobs.uploads[testSourceKey] = []byte(tt.file)

			ack := runJob(env, 1)

			acks, nacks, _ := ack.settled()
			assert.Equal(t, 1, acks)
			assert.Zero(t, nacks)
			assert.Empty(t, env.broker.retries)

			job := env.jobs.job(testJobID)
			assert.Equal(t, tt.wantStatus, job.Status)

			if tt.wantStatus == domain.JobStatusFailed {
				assert.Equal(t, tt.wantErrorMsg, job.ErrorMessage)
				assert.Empty(t, job.ResultKey)
				assert.Empty(t, env.blobs.results)
				return
			}

			assert.Equal(t, "processed-files/"+testJobID+"-result.json", job.ResultKey)

			doc := readResult(t, env)
			assert.Equal(t, testJobID, doc["jobId"])
			assert.Equal(t, testSourceKey, doc["sourceKey"])
			assert.Len(t, doc["validRecords"], tt.wantValid)
			assert.Len(t, doc["rowErrors"], tt.wantErrors)
			assert.Len(t, doc["ignoredColumns"], len(tt.wantIgnored))
			for i, col := range tt.wantIgnored {
				assert.Equal(t, col, doc["ignoredColumns"].([]any)[i])
			}
		})
	}
}

func TestProcessJob_ResultDocument(t *testing.T) {
	env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
	env.blobs.uploads[testSourceKey] = []byte("SKU , Price\nA1,10\nA2,x\n")

	runJob(env, 1)

	doc := readResult(t, env)
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["processedAt"])
	assert.Equal(t, float64(2), doc["totalRows"])
	assert.Equal(t, []any{"sku", "price"}, doc["matchedColumns"])
	assert.Equal(t, []any{map[string]any{"sku": "A1", "price": float64(10)}}, doc["validRecords"])

	rowErrors := doc["rowErrors"].([]any)
	require.Len(t, rowErrors, 1)
	rowErr := rowErrors[0].(map[string]any)
	assert.Equal(t, float64(2), rowErr["rowIndex"])
	assert.Equal(t, "Price", rowErr["columnName"])
	assert.Equal(t, "TYPE_MISMATCH", rowErr["errorKind"])

	summary := doc["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["validRows"])
	assert.Equal(t, float64(1), summary["invalidRows"])
}

func TestProcessJob_SkippedAttributes(t *testing.T) {
	t.Run("listed in the result document", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.schema.skipped = []domain.SkippedAttribute{
			{ID: "a9", Name: "size", Reason: "multi_select attribute has no options"},
		}
		env.blobs.uploads[testSourceKey] = []byte("sku,size\nA1,M\n")

		runJob(env, 1)

		assert.Equal(t, domain.JobStatusCompletedWithIssues, env.jobs.job(testJobID).Status)
		doc := readResult(t, env)
		assert.Equal(t, []any{"size"}, doc["ignoredColumns"])
		skipped := doc["skippedAttributes"].([]any)
		require.Len(t, skipped, 1)
		assert.Equal(t, "size", skipped[0].(map[string]any)["name"])
	})

	t.Run("omitted when the schema is clean", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		runJob(env, 1)

		assert.NotContains(t, readResult(t, env), "skippedAttributes")
	})

	t.Run("no usable definitions fails the job", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.schema.defs = nil
		env.schema.skipped = []domain.SkippedAttribute{{ID: "a9", Name: "size", Reason: "invalid"}}
		env.blobs.uploads[testSourceKey] = []byte("size\nM\n")

		runJob(env, 1)

		job := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Equal(t, "no usable attribute definitions are configured (1 invalid)", job.ErrorMessage)
	})
}

func TestProcessJob_UnrecoverableInput(t *testing.T) {
	t.Run("missing source file", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))

		ack := runJob(env, 1)

		acks, _, _ := ack.settled()
		assert.Equal(t, 1, acks)
		job := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "source file could not be fetched")
	})

	t.Run("empty schema", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.schema.defs = nil
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		ack := runJob(env, 1)

		acks, _, _ := ack.settled()
		assert.Equal(t, 1, acks)
		job := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Equal(t, "no attribute definitions are configured", job.ErrorMessage)
	})

	t.Run("failure cannot be recorded", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.jobs.failErr = errors.New("database unavailable")

		ack := runJob(env, 1)

		acks, nacks, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Zero(t, nacks)
		assert.Equal(t, []int{2}, env.broker.retries)
	})
}

func TestProcessJob_StaleDeliveries(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		env := newTestEnv(t)

		ack := runJob(env, 1)

		acks, nacks, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Zero(t, nacks)
	})

	t.Run("terminal job", func(t *testing.T) {
		job := pendingJob(testJobID, testSourceKey)
		job.Status = domain.JobStatusCompleted
		job.ResultKey = "processed-files/" + testJobID + "-result.json"
		env := newTestEnv(t, job)

		ack := runJob(env, 1)

		acks, _, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Zero(t, env.jobs.claims)
		assert.Equal(t, domain.JobStatusCompleted, env.jobs.job(testJobID).Status)
	})

	t.Run("duplicate of a live claim is deferred", func(t *testing.T) {
		job := pendingJob(testJobID, testSourceKey)
		job.Status = domain.JobStatusProcessing
		job.Attempts = 1
		env := newTestEnv(t, job)
		job.UpdatedAt = env.jobs.now
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		ack := runJob(env, 1)

		acks, nacks, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Zero(t, nacks)
		assert.Equal(t, []int{1}, env.broker.retries)
		assert.Empty(t, env.blobs.results)
		assert.Equal(t, domain.JobStatusProcessing, env.jobs.job(testJobID).Status)
	})

	t.Run("older attempt than the holder is discarded", func(t *testing.T) {
		job := pendingJob(testJobID, testSourceKey)
		job.Status = domain.JobStatusProcessing
		job.Attempts = 3
		env := newTestEnv(t, job)
		job.UpdatedAt = env.jobs.now

		ack := runJob(env, 2)

		acks, _, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Empty(t, env.broker.retries)
		assert.Equal(t, 3, env.jobs.job(testJobID).Attempts)
	})

	t.Run("same attempt reclaims a job whose lease expired", func(t *testing.T) {
		job := pendingJob(testJobID, testSourceKey)
		job.Status = domain.JobStatusProcessing
		job.Attempts = 1
		job.WorkerID = "crashed-worker"
		env := newTestEnv(t, job)
		job.UpdatedAt = env.jobs.now.Add(-time.Hour)
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		runJob(env, 1)

		got := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, "worker-test", got.WorkerID)
		assert.Len(t, env.blobs.results, 1)
	})

	t.Run("later attempt reclaims a stranded job", func(t *testing.T) {
		job := pendingJob(testJobID, testSourceKey)
		job.Status = domain.JobStatusProcessing
		job.Attempts = 1
		env := newTestEnv(t, job)
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		runJob(env, 2)

		got := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("second delivery after completion keeps one result", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

		runJob(env, 1)
		runJob(env, 1)

		assert.Len(t, env.blobs.results, 1)
		assert.Equal(t, 1, env.jobs.claims)
	})
}

func TestHandleResult_Retries(t *testing.T) {
	t.Run("transient error schedules next attempt", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.openErr = errors.New("connection reset")

		ack := runJob(env, 2)

		acks, nacks, _ := ack.settled()
		assert.Equal(t, 1, acks)
		assert.Zero(t, nacks)
		assert.Equal(t, []int{3}, env.broker.retries)
		assert.Equal(t, domain.JobStatusProcessing, env.jobs.job(testJobID).Status)
	})

	t.Run("result upload failure is retried", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")
		env.blobs.putErr = errors.New("timeout")

		runJob(env, 1)

		assert.Equal(t, []int{2}, env.broker.retries)
	})

	t.Run("store outage before claim is retried", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.jobs.getErr = errors.New("connection refused")

		runJob(env, 1)

		assert.Equal(t, []int{2}, env.broker.retries)
	})

	t.Run("exhausted budget fails the job and dead-letters", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.openErr = errors.New("connection reset")

		ack := runJob(env, 5)

		acks, nacks, requeue := ack.settled()
		assert.Zero(t, acks)
		assert.Equal(t, 1, nacks)
		assert.False(t, requeue)
		assert.Empty(t, env.broker.retries)

		job := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Equal(t, "processing failed after 5 attempts: retry budget exhausted", job.ErrorMessage)
	})

	t.Run("requeued delivery drives the job to a terminal status", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")
		env.blobs.putErr = errors.New("timeout")
		env.broker.retryErr = errors.New("channel closed")

		first := runJob(env, 1)

		_, nacks, requeue := first.settled()
		require.Equal(t, 1, nacks)
		require.True(t, requeue)
		require.Equal(t, domain.JobStatusProcessing, env.jobs.job(testJobID).Status)

		// the broker hands the same attempt back while the first claim is still live
		env.blobs.putErr = nil
		env.broker.retryErr = nil
		second := runJob(env, 1)

		acks, _, _ := second.settled()
		assert.Equal(t, 1, acks)
		assert.Equal(t, []int{1}, env.broker.retries)
		assert.Equal(t, domain.JobStatusProcessing, env.jobs.job(testJobID).Status)

		// the parked copy returns after the claim lease ran out
		env.jobs.advance(env.worker.claimLease + time.Second)
		third := runJob(env, 1)

		acks, _, _ = third.settled()
		assert.Equal(t, 1, acks)
		job := env.jobs.job(testJobID)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		assert.Equal(t, "processed-files/"+testJobID+"-result.json", job.ResultKey)
	})

	t.Run("retry publish failure requeues", func(t *testing.T) {
		env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
		env.blobs.openErr = errors.New("connection reset")
		env.broker.retryErr = errors.New("channel closed")

		ack := runJob(env, 1)

		acks, nacks, requeue := ack.settled()
		assert.Zero(t, acks)
		assert.Equal(t, 1, nacks)
		assert.True(t, requeue)
	})
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		headers     amqp.Table
		wantErr     bool
		wantAttempt int
	}{
		{
			name:        "valid message",
			body:        `{"jobId":"` + testJobID + `","sourceKey":"user-uploads/x/a.csv"}`,
			wantAttempt: 1,
		},
		{
			name:        "unknown fields are ignored",
			body:        `{"jobId":"` + testJobID + `","sourceKey":"k","priority":9}`,
			headers:     amqp.Table{"x-attempt": int32(4)},
			wantAttempt: 4,
		},
		{
			name:    "bad json",
			body:    `{"jobId":`,
			wantErr: true,
		},
		{
			name:    "missing job id",
			body:    `{"sourceKey":"k"}`,
			wantErr: true,
		},
		{
			name:    "job id is not a uuid",
			body:    `{"jobId":"42"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeMessage(amqp.Delivery{Body: []byte(tt.body), Headers: tt.headers})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidMessage)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, testJobID, msg.JobID)
			assert.Equal(t, tt.wantAttempt, msg.Attempt)
		})
	}
}

func TestWorker_Start(t *testing.T) {
	env := newTestEnv(t, pendingJob(testJobID, testSourceKey))
	env.blobs.uploads[testSourceKey] = []byte("sku\nA1\n")

	malformed, malformedAck := newDelivery(`not json`, 1)
	valid, validAck := newDelivery(`{"jobId":"`+testJobID+`"}`, 1)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- malformed
	deliveries <- valid
	close(deliveries)
	env.broker.deliveries = deliveries

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := env.worker.Start(ctx)
	require.ErrorIs(t, err, ErrDeliveriesClosed)

	assert.Equal(t, 2, env.broker.qos)

	acks, nacks, requeue := malformedAck.settled()
	assert.Zero(t, acks)
	assert.Equal(t, 1, nacks)
	assert.False(t, requeue)

	acks, nacks, _ = validAck.settled()
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
	assert.Equal(t, domain.JobStatusCompleted, env.jobs.job(testJobID).Status)
}

func TestDecideStatus(t *testing.T) {
	tests := []struct {
		name   string
		result domain.ValidationResult
		want   domain.JobStatus
	}{
		{
			name:   "clean",
			result: domain.ValidationResult{ValidRecords: []map[string]any{{"sku": "A"}}},
			want:   domain.JobStatusCompleted,
		},
		{
			name: "row errors",
			result: domain.ValidationResult{
				ValidRecords: []map[string]any{{"sku": "A"}},
				RowErrors:    []domain.RowError{{RowIndex: 2}},
			},
			want: domain.JobStatusCompletedWithIssues,
		},
		{
			name: "ignored columns",
			result: domain.ValidationResult{
				ValidRecords:   []map[string]any{{"sku": "A"}},
				IgnoredColumns: []string{"x"},
			},
			want: domain.JobStatusCompletedWithIssues,
		},
		{
			name:   "no valid records",
			result: domain.ValidationResult{RowErrors: []domain.RowError{{RowIndex: 1}}},
			want:   domain.JobStatusCompletedWithIssues,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideStatus(&tt.result))
		})
	}
}
