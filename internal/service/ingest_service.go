package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schema-relay/internal/domain"
	"schema-relay/internal/observability"
	"schema-relay/internal/queue"
	"schema-relay/internal/registry"
	"schema-relay/internal/repository"
	"schema-relay/internal/schema"
)

const (
	defaultMaxAttempts   = 5
	defaultQueryMaxLimit = 100
	defaultMaxFileRows   = 10000
)

// IngestService accepts payloads, validates them against their registered
// schema, transforms them, and persists them before handing delivery off to
// the queue. Validation failures persist nothing; transform failures persist
// the raw payload in a terminal state.
type IngestService struct {
	records   repository.RecordRepository
	attempts  repository.AttemptRepository
	schemas   registry.Client
	publisher queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics

	maxAttempts   int
	queryMaxLimit int
	maxFileRows   int
}

type IngestRequest struct {
	SchemaName    string
	SchemaVersion int
	Payload       json.RawMessage
	CorrelationID string
}

type QueryParams struct {
	SchemaName string
	Limit      int
	Offset     int
}

// RecordPage is a stable window over a schema's records: positions already
// returned never shift under concurrent inserts.
type RecordPage struct {
	Records []domain.Record
	Total   int64
	Limit   int
	Offset  int
}

type FileRowError struct {
	Row   int
	Error string
}

type FileIngestSummary struct {
	Total     int
	Persisted int
	Failed    int
	Truncated bool
	Errors    []FileRowError
}

func NewIngestService(
	records repository.RecordRepository,
	attempts repository.AttemptRepository,
	schemas registry.Client,
	publisher queue.Publisher,
	maxAttempts int,
	queryMaxLimit int,
	logger *zap.Logger,
) (*IngestService, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if schemas == nil {
		return nil, fmt.Errorf("schema registry client is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if queryMaxLimit <= 0 {
		queryMaxLimit = defaultQueryMaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestService{
		records:       records,
		attempts:      attempts,
		schemas:       schemas,
		publisher:     publisher,
		logger:        logger,
		maxAttempts:   maxAttempts,
		queryMaxLimit: queryMaxLimit,
		maxFileRows:   defaultMaxFileRows,
	}, nil
}

func (s *IngestService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*domain.Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	schemaName := strings.TrimSpace(req.SchemaName)
	if schemaName == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	if req.SchemaVersion < 0 {
		return nil, fmt.Errorf("%w: schema version must be >= 0", domain.ErrValidation)
	}
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	descriptor, err := s.schemas.Fetch(ctx, schemaName, req.SchemaVersion)
	if err != nil {
		return nil, err
	}

	validated, err := schema.Validate(req.Payload, descriptor)
	if err != nil {
		s.metrics.IncRecordIngested(schemaName, "validation_failed")
		return nil, err
	}

	record := &domain.Record{
		SchemaName:     descriptor.Name,
		SchemaVersion:  descriptor.Version,
		RawPayload:     req.Payload,
		DestinationURL: descriptor.DestinationURL,
		MaxAttempts:    s.maxAttempts,
		CorrelationID:  correlationID,
	}

	transformed, transformErr := schema.Transform(validated, descriptor)
	if transformErr != nil {
		record.Status = domain.StatusFailedTransform
		message := transformErr.Error()
		record.LastError = &message

		if createErr := s.records.Create(ctx, record); createErr != nil {
			return nil, fmt.Errorf("failed to persist transform failure: %w", createErr)
		}
		s.metrics.IncRecordIngested(schemaName, "transform_failed")
		s.metrics.IncRecordFailed(schemaName, "transform_error")
		return record, transformErr
	}

	record.Status = domain.StatusPersisted
	record.TransformedPayload = transformed

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}
	s.metrics.IncRecordIngested(schemaName, "persisted")

	msg := queue.ForwardMessage{
		RecordID:      record.ID,
		SchemaName:    record.SchemaName,
		CorrelationID: record.CorrelationID,
	}
	if err := s.publisher.Publish(ctx, queue.ForwardQueueName, msg); err != nil {
		// The record is durable; the stalled scanner re-enqueues it.
		s.logger.Warn("failed to publish forward message",
			zap.Int64("recordId", record.ID),
			zap.String("schema", record.SchemaName),
			zap.Error(err),
		)
		return record, nil
	}

	if err := s.records.MarkForwarding(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("failed to mark record forwarding: %w", err)
	}
	record.Status = domain.StatusForwarding

	return record, nil
}

// IngestFile ingests a CSV file row by row. The header row names the fields;
// values are coerced to the schema's declared types before validation. Rows
// are independent: a failing row is reported and skipped.
func (s *IngestService) IngestFile(
	ctx context.Context,
	schemaName string,
	schemaVersion int,
	file io.Reader,
) (*FileIngestSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: file is required", domain.ErrValidation)
	}

	descriptor, err := s.schemas.Fetch(ctx, schemaName, schemaVersion)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv header: %v", domain.ErrValidation, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	summary := &FileIngestSummary{}
	correlationID := uuid.NewString()

	for rowNumber := 2; ; rowNumber++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			summary.Total++
			summary.Failed++
			summary.Errors = append(summary.Errors, FileRowError{Row: rowNumber, Error: err.Error()})
			continue
		}
		if summary.Total >= s.maxFileRows {
			// Earlier rows are already persisted and enqueued; report the
			// cut instead of discarding the summary.
			summary.Truncated = true
			summary.Errors = append(summary.Errors, FileRowError{
				Row:   rowNumber,
				Error: fmt.Sprintf("row limit of %d reached, remaining rows skipped", s.maxFileRows),
			})
			break
		}
		summary.Total++

		payload, err := csvRowToPayload(header, row, descriptor)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, FileRowError{Row: rowNumber, Error: err.Error()})
			continue
		}

		_, err = s.Ingest(ctx, IngestRequest{
			SchemaName:    descriptor.Name,
			SchemaVersion: descriptor.Version,
			Payload:       payload,
			CorrelationID: fmt.Sprintf("%s-%d", correlationID, rowNumber),
		})
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, FileRowError{Row: rowNumber, Error: err.Error()})
			continue
		}
		summary.Persisted++
	}

	return summary, nil
}

func (s *IngestService) GetByID(ctx context.Context, id int64) (*domain.Record, []domain.DeliveryAttempt, error) {
	if id <= 0 {
		return nil, nil, fmt.Errorf("%w: record id must be positive", domain.ErrValidation)
	}

	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var attempts []domain.DeliveryAttempt
	if s.attempts != nil {
		attempts, err = s.attempts.GetByRecordID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
	}

	return record, attempts, nil
}

func (s *IngestService) Query(ctx context.Context, params QueryParams) (*RecordPage, error) {
	schemaName := strings.TrimSpace(params.SchemaName)
	if schemaName == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrInvalidQuery)
	}
	if params.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidQuery)
	}
	if params.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidQuery)
	}

	limit := params.Limit
	if limit > s.queryMaxLimit {
		limit = s.queryMaxLimit
	}

	records, total, err := s.records.ListBySchema(ctx, schemaName, limit, params.Offset)
	if err != nil {
		return nil, err
	}

	return &RecordPage{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  params.Offset,
	}, nil
}

func (s *IngestService) RegisterSchema(ctx context.Context, name string, definition domain.Definition) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	if err := definition.Validate(); err != nil {
		return nil, err
	}

	return s.schemas.Register(ctx, name, definition)
}

func (s *IngestService) GetSchema(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	return s.schemas.Fetch(ctx, name, version)
}

func (s *IngestService) RefreshSchema(ctx context.Context, name string) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	return s.schemas.Refresh(ctx, name)
}

// csvRowToPayload builds a JSON object from a csv row, coercing cell text to
// the schema's declared field types. Unknown columns pass through as strings.
func csvRowToPayload(header []string, row []string, descriptor *domain.SchemaDescriptor) (json.RawMessage, error) {
	if len(row) != len(header) {
		return nil, fmt.Errorf("row has %d columns, header has %d", len(row), len(header))
	}

	payload := make(map[string]any, len(header))
	for i, column := range header {
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}

		rule, ok := descriptor.Definition.Field(column)
		if !ok {
			payload[column] = cell
			continue
		}

		value, err := coerceCSVCell(rule, cell)
		if err != nil {
			return nil, err
		}
		payload[column] = value
	}

	return json.Marshal(payload)
}

func coerceCSVCell(rule domain.FieldRule, cell string) (any, error) {
	switch rule.Type {
	case domain.FieldTypeInteger:
		parsed, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not an integer", rule.Name, cell)
		}
		return parsed, nil
	case domain.FieldTypeNumber:
		parsed, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not a number", rule.Name, cell)
		}
		return parsed, nil
	case domain.FieldTypeBoolean:
		parsed, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not a boolean", rule.Name, cell)
		}
		return parsed, nil
	default:
		return cell, nil
	}
}
