package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schema-relay/internal/domain"
	"schema-relay/internal/queue"
	"schema-relay/internal/repository"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
	defaultStalledAfter      = 5 * time.Minute
)

// RetryScanner re-enqueues records whose delivery must resume: due retries,
// records stuck mid-forward after a crash, and persisted records whose
// enqueue was lost.
type RetryScanner struct {
	records   repository.RecordRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	stalled   time.Duration
	now       func() time.Time
}

func NewRetryScanner(
	records repository.RecordRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		records:   records,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		stalled:   defaultStalledAfter,
		now:       time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scan(ctx context.Context) error {
	if err := s.scanDue(ctx); err != nil {
		return err
	}
	return s.scanStalled(ctx)
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueRecords, err := s.records.GetDueForRetry(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range dueRecords {
		record := dueRecords[i]
		if err := s.publisher.Publish(ctx, queue.ForwardQueueName, forwardMessageFor(record)); err != nil {
			s.logger.Error("failed to enqueue retry record",
				zap.Int64("recordId", record.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.records.ClearNextRetryAt(ctx, record.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.Int64("recordId", record.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}

func (s *RetryScanner) scanStalled(ctx context.Context) error {
	olderThan := s.now().UTC().Add(-s.stalled)
	stalledRecords, err := s.records.GetStalled(ctx, olderThan, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stalled records: %w", err)
	}

	for i := range stalledRecords {
		record := stalledRecords[i]
		if err := s.publisher.Publish(ctx, queue.ForwardQueueName, forwardMessageFor(record)); err != nil {
			s.logger.Error("failed to re-enqueue stalled record",
				zap.Int64("recordId", record.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("re-enqueued stalled record",
			zap.Int64("recordId", record.ID),
			zap.String("status", record.Status.String()),
		)
	}

	return nil
}

func forwardMessageFor(record domain.Record) queue.ForwardMessage {
	return queue.ForwardMessage{
		RecordID:      record.ID,
		SchemaName:    record.SchemaName,
		CorrelationID: record.CorrelationID,
	}
}
