package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"schema-relay/internal/domain"
	"schema-relay/internal/service"
)

const defaultQueryLimit = 50

type RecordService interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.Record, error)
	IngestFile(ctx context.Context, schemaName string, schemaVersion int, file io.Reader) (*service.FileIngestSummary, error)
	GetByID(ctx context.Context, id int64) (*domain.Record, []domain.DeliveryAttempt, error)
	Query(ctx context.Context, params service.QueryParams) (*service.RecordPage, error)
}

type RecordHandler struct {
	service RecordService
}

func NewRecordHandler(service RecordService) (*RecordHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("record service is required")
	}
	return &RecordHandler{service: service}, nil
}

func RegisterRecordRoutes(router fiber.Router, service RecordService) error {
	h, err := NewRecordHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/records", h.IngestRecord)
	v1.Post("/records/file", h.IngestFile)
	v1.Get("/records", h.QueryRecords)
	v1.Get("/records/:id", h.GetRecord)

	return nil
}

type ingestRecordRequest struct {
	Schema        string          `json:"schema"`
	Version       int             `json:"version"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlationId"`
}

type recordResponse struct {
	ID                 int64           `json:"id"`
	Schema             string          `json:"schema"`
	SchemaVersion      int             `json:"schemaVersion"`
	Status             string          `json:"status"`
	RawPayload         json.RawMessage `json:"rawPayload,omitempty"`
	TransformedPayload json.RawMessage `json:"transformedPayload,omitempty"`
	DestinationURL     string          `json:"destinationUrl"`
	ForwardAttempts    int             `json:"forwardAttempts"`
	MaxAttempts        int             `json:"maxAttempts"`
	LastError          *string         `json:"lastError,omitempty"`
	NextRetryAt        *time.Time      `json:"nextRetryAt,omitempty"`
	CorrelationID      string          `json:"correlationId"`
	CreatedAt          time.Time       `json:"createdAt,omitempty"`
	UpdatedAt          time.Time       `json:"updatedAt,omitempty"`
}

type recordDetailResponse struct {
	recordResponse
	Attempts []attemptResponse `json:"attempts"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type queryRecordsResponse struct {
	Data []recordResponse `json:"data"`
	Meta queryMeta        `json:"meta"`
}

type queryMeta struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type fileIngestResponse struct {
	Total     int                `json:"total"`
	Persisted int                `json:"persisted"`
	Failed    int                `json:"failed"`
	Truncated bool               `json:"truncated,omitempty"`
	Errors    []fileRowErrorItem `json:"errors,omitempty"`
}

type fileRowErrorItem struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

func (h *RecordHandler) IngestRecord(c *fiber.Ctx) error {
	var req ingestRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = requestCorrelationID(c)
	}

	record, err := h.service.Ingest(c.Context(), service.IngestRequest{
		SchemaName:    req.Schema,
		SchemaVersion: req.Version,
		Payload:       req.Payload,
		CorrelationID: correlationID,
	})
	if err != nil {
		// A transform failure still persisted the record; report it.
		if errors.Is(err, domain.ErrTransform) && record != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  err.Error(),
				"record": toRecordResponse(record),
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toRecordResponse(record))
}

func (h *RecordHandler) IngestFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}

	schemaName := strings.TrimSpace(c.FormValue("schema"))
	if schemaName == "" {
		schemaName = strings.TrimSpace(c.Query("schema"))
	}

	version := 0
	if rawVersion := strings.TrimSpace(c.FormValue("version")); rawVersion != "" {
		version, err = strconv.Atoi(rawVersion)
		if err != nil || version < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "version must be a non-negative integer")
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to open uploaded file")
	}
	defer file.Close()

	summary, err := h.service.IngestFile(c.Context(), schemaName, version, file)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]fileRowErrorItem, 0, len(summary.Errors))
	for _, rowErr := range summary.Errors {
		items = append(items, fileRowErrorItem{Row: rowErr.Row, Error: rowErr.Error})
	}

	return c.Status(fiber.StatusOK).JSON(fileIngestResponse{
		Total:     summary.Total,
		Persisted: summary.Persisted,
		Failed:    summary.Failed,
		Truncated: summary.Truncated,
		Errors:    items,
	})
}

func (h *RecordHandler) QueryRecords(c *fiber.Ctx) error {
	params := service.QueryParams{
		SchemaName: strings.TrimSpace(c.Query("schema")),
		Limit:      c.QueryInt("limit", defaultQueryLimit),
		Offset:     c.QueryInt("offset", 0),
	}

	page, err := h.service.Query(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(queryRecordsResponse{
		Data: toRecordResponses(page.Records),
		Meta: queryMeta{
			Limit:  page.Limit,
			Offset: page.Offset,
			Total:  page.Total,
		},
	})
}

func (h *RecordHandler) GetRecord(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "record id must be an integer")
	}

	record, attempts, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	attemptItems := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		attemptItems = append(attemptItems, attemptResponse{
			AttemptNumber: attempts[i].AttemptNumber,
			StatusCode:    attempts[i].StatusCode,
			ResponseBody:  attempts[i].ResponseBody,
			Error:         attempts[i].Error,
			CreatedAt:     attempts[i].CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(recordDetailResponse{
		recordResponse: *toRecordResponse(record),
		Attempts:       attemptItems,
	})
}

func toRecordResponse(record *domain.Record) *recordResponse {
	if record == nil {
		return nil
	}

	return &recordResponse{
		ID:                 record.ID,
		Schema:             record.SchemaName,
		SchemaVersion:      record.SchemaVersion,
		Status:             record.Status.String(),
		RawPayload:         record.RawPayload,
		TransformedPayload: record.TransformedPayload,
		DestinationURL:     record.DestinationURL,
		ForwardAttempts:    record.ForwardAttempts,
		MaxAttempts:        record.MaxAttempts,
		LastError:          record.LastError,
		NextRetryAt:        record.NextRetryAt,
		CorrelationID:      record.CorrelationID,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}

func toRecordResponses(records []domain.Record) []recordResponse {
	responses := make([]recordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, *toRecordResponse(&records[i]))
	}
	return responses
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidQuery):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSchemaNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTransform):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
