package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"schema-relay/internal/domain"
	"schema-relay/internal/queue"
)

func newTestScanner(t *testing.T, records *fakeRecordRepo, publisher *fakePublisher) *RetryScanner {
	t.Helper()

	scanner, err := NewRetryScanner(records, publisher, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}
	scanner.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return scanner
}

func TestRetryScannerEnqueuesDueRecords(t *testing.T) {
	t.Parallel()

	var published []queue.ForwardMessage
	var cleared []int64

	records := &fakeRecordRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
			return []domain.Record{
				{ID: 1, SchemaName: "orders", CorrelationID: "c1", Status: domain.StatusForwarding},
				{ID: 2, SchemaName: "contacts", CorrelationID: "c2", Status: domain.StatusForwarding},
			}, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id int64) error {
			cleared = append(cleared, id)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.ForwardMessage) error {
			if queueName != queue.ForwardQueueName {
				t.Fatalf("queue = %q, want %q", queueName, queue.ForwardQueueName)
			}
			published = append(published, msg)
			return nil
		},
	}

	scanner := newTestScanner(t, records, publisher)

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	if published[0].RecordID != 1 || published[1].RecordID != 2 {
		t.Fatalf("published ids = %v", published)
	}
	if len(cleared) != 2 {
		t.Fatalf("cleared = %v, want both records", cleared)
	}
}

func TestRetryScannerPublishFailureKeepsRetryTimestamp(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
			return []domain.Record{{ID: 1, SchemaName: "orders", Status: domain.StatusForwarding}}, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id int64) error {
			t.Fatal("ClearNextRetryAt should not be called when publish fails")
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.ForwardMessage) error {
			return errors.New("broker unavailable")
		},
	}

	scanner := newTestScanner(t, records, publisher)

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
}

func TestRetryScannerReenqueuesStalledRecords(t *testing.T) {
	t.Parallel()

	var gotOlderThan time.Time
	var published []queue.ForwardMessage

	records := &fakeRecordRepo{
		getStalledFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Record, error) {
			gotOlderThan = olderThan
			return []domain.Record{
				{ID: 9, SchemaName: "orders", Status: domain.StatusPersisted},
				{ID: 10, SchemaName: "orders", Status: domain.StatusForwarding},
			}, nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.ForwardMessage) error {
			published = append(published, msg)
			return nil
		},
	}

	scanner := newTestScanner(t, records, publisher)

	if err := scanner.scanStalled(context.Background()); err != nil {
		t.Fatalf("scanStalled() error = %v", err)
	}

	wantOlderThan := time.Unix(1_700_000_000, 0).UTC().Add(-defaultStalledAfter)
	if !gotOlderThan.Equal(wantOlderThan) {
		t.Fatalf("olderThan = %v, want %v", gotOlderThan, wantOlderThan)
	}
	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
}

func TestRetryScannerFetchErrorPropagates(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
			return nil, errors.New("query failed")
		},
	}

	scanner := newTestScanner(t, records, &fakePublisher{})

	if err := scanner.scan(context.Background()); err == nil {
		t.Fatal("expected error from scan")
	}
}

func TestRetryScannerStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t, &fakeRecordRepo{}, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scanner.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not stop after context cancel")
	}
}
