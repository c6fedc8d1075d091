package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/metrics"
	"github.com/cuongbtq/product-import/shared/rabbitmq"
)

// setupConsumer sets up the RabbitMQ consumer with QoS and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.broker.SetQos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.broker.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to the worker pool.
// It returns ErrDeliveriesClosed if the broker closes the channel before ctx is canceled.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			msg, err := decodeMessage(delivery)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.Any("error", err),
					slog.String("body", truncate(string(delivery.Body), 256)),
				)
				// Malformed messages go to the DLQ without requeue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				metrics.IncreaseDeadLetterMetric("malformed")
				continue
			}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Int("attempt", msg.Attempt),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// Requeue so another consumer picks it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return nil
			}
		}
	}
}

// decodeMessage parses a job message. Unknown fields are ignored.
func decodeMessage(d amqp.Delivery) (*jobMessage, error) {
	var body domain.JobMessage
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	if _, err := uuid.Parse(body.JobID); err != nil {
		return nil, fmt.Errorf("%w: jobId %q is not a UUID", domain.ErrInvalidMessage, body.JobID)
	}

	return &jobMessage{
		delivery: d,
		JobID:    body.JobID,
		Attempt:  rabbitmq.AttemptFromHeaders(d.Headers),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
