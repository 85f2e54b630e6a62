package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schema-relay/internal/domain"
	"schema-relay/internal/forwarder"
	"schema-relay/internal/observability"
	"schema-relay/internal/queue"
	"schema-relay/internal/ratelimit"
	"schema-relay/internal/repository"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
)

// ForwardWorker consumes forward messages and delivers records to their
// destination, recording every attempt. Retry state lives on the record, so
// a restart resumes where the previous process stopped.
type ForwardWorker struct {
	records     repository.RecordRepository
	attempts    repository.AttemptRepository
	consumer    queue.Consumer
	forwarder   forwarder.Forwarder
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewForwardWorker(
	records repository.RecordRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	fwd forwarder.Forwarder,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*ForwardWorker, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if fwd == nil {
		return nil, fmt.Errorf("forwarder is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ForwardWorker{
		records:     records,
		attempts:    attempts,
		consumer:    consumer,
		forwarder:   fwd,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (w *ForwardWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the forward queue until context cancellation.
func (w *ForwardWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("forward worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.ForwardQueueName, w.processMessage)
			if err != nil {
				w.logger.Error("forward worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("forward worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *ForwardWorker) processMessage(ctx context.Context, msg queue.ForwardMessage) error {
	record, err := w.records.LockForForwarding(ctx, msg.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("record not found during lock, skipping",
				zap.Int64("recordId", msg.RecordID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock record for forwarding: %w", err)
	}

	// Nil means the record already reached a terminal state; ack and skip.
	if record == nil {
		return nil
	}

	schemaName := strings.ToLower(record.SchemaName)
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(schemaName)
		defer w.metrics.DecWorkerInFlight(schemaName)
	}

	if w.rateLimiter != nil {
		if err := w.rateLimiter.Wait(ctx, destinationKey(record.DestinationURL)); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	attemptNumber := record.ForwardAttempts + 1
	forwardStart := w.now()
	resp, forwardErr := w.forwarder.Forward(ctx, record.DestinationURL, record.TransformedPayload)
	if w.metrics != nil {
		w.metrics.ObserveForwardDuration(schemaName, w.now().Sub(forwardStart))
	}

	if err := w.recordAttempt(ctx, record.ID, attemptNumber, resp, forwardErr); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	if forwardErr == nil {
		if err := w.records.CompleteForward(ctx, record.ID, domain.StatusForwarded, nil); err != nil {
			return fmt.Errorf("failed to mark record as forwarded: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncRecordForwarded(schemaName)
		}
		return nil
	}

	isTransient := forwarder.IsTransient(forwardErr)
	maxAttempts := record.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	if isTransient && attemptNumber < maxAttempts {
		nextRetryAt := w.now().Add(w.computeRetryDelay(attemptNumber))
		if err := w.records.ScheduleRetry(ctx, record.ID, nextRetryAt, forwardErr.Error()); err != nil {
			return fmt.Errorf("failed to schedule record retry: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncRetryScheduled(schemaName)
		}
		return nil
	}

	message := forwardErr.Error()
	if err := w.records.CompleteForward(ctx, record.ID, domain.StatusFailedForward, &message); err != nil {
		return fmt.Errorf("failed to mark record as failed: %w", err)
	}
	if w.metrics != nil {
		reason := "permanent_error"
		if isTransient {
			reason = "retry_exhausted"
		}
		w.metrics.IncRecordFailed(schemaName, reason)
	}

	return nil
}

func (w *ForwardWorker) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if w.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = w.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (w *ForwardWorker) recordAttempt(
	ctx context.Context,
	recordID int64,
	attemptNumber int,
	resp *forwarder.ForwardResponse,
	forwardErr error,
) error {
	if w.attempts == nil {
		return nil
	}

	var statusCode *int
	var responseBody *string
	var attemptError *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			value := resp.Body
			responseBody = &value
		}
	}

	if forwardErr != nil {
		value := forwardErr.Error()
		attemptError = &value

		var fwdErr *forwarder.ForwardError
		if errors.As(forwardErr, &fwdErr) && fwdErr.StatusCode > 0 && statusCode == nil {
			value := fwdErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		RecordID:      recordID,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptError,
		CreatedAt:     w.now().UTC(),
	}

	return w.attempts.Create(ctx, attempt)
}

// destinationKey buckets rate limiting by destination host. A malformed URL
// falls back to the full string; the forwarder rejects it permanently anyway.
func destinationKey(destinationURL string) string {
	parsed, err := url.Parse(destinationURL)
	if err != nil || parsed.Host == "" {
		return destinationURL
	}
	return parsed.Host
}
