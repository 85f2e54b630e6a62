package repository

import (
	"encoding/json"
	"time"

	"schema-relay/internal/domain"
)

// RecordModel is the persistence model for the records table.
type RecordModel struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	SchemaName         string          `gorm:"type:varchar(100);not null"`
	SchemaVersion      int             `gorm:"not null"`
	RawPayload         json.RawMessage `gorm:"type:jsonb;not null"`
	TransformedPayload json.RawMessage `gorm:"type:jsonb"`
	Status             domain.Status   `gorm:"type:varchar(20);not null"`
	DestinationURL     string          `gorm:"type:varchar(255);not null"`
	ForwardAttempts    int             `gorm:"not null;default:0"`
	MaxAttempts        int             `gorm:"not null;default:5"`
	LastError          *string         `gorm:"type:text"`
	NextRetryAt        *time.Time
	CorrelationID      string `gorm:"type:varchar(36);not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (RecordModel) TableName() string {
	return "records"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	RecordID      int64   `gorm:"not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func recordModelFromDomain(r *domain.Record) *RecordModel {
	if r == nil {
		return nil
	}

	return &RecordModel{
		ID:                 r.ID,
		SchemaName:         r.SchemaName,
		SchemaVersion:      r.SchemaVersion,
		RawPayload:         r.RawPayload,
		TransformedPayload: r.TransformedPayload,
		Status:             r.Status,
		DestinationURL:     r.DestinationURL,
		ForwardAttempts:    r.ForwardAttempts,
		MaxAttempts:        r.MaxAttempts,
		LastError:          r.LastError,
		NextRetryAt:        r.NextRetryAt,
		CorrelationID:      r.CorrelationID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func recordModelToDomain(m *RecordModel) *domain.Record {
	if m == nil {
		return nil
	}

	return &domain.Record{
		ID:                 m.ID,
		SchemaName:         m.SchemaName,
		SchemaVersion:      m.SchemaVersion,
		RawPayload:         m.RawPayload,
		TransformedPayload: m.TransformedPayload,
		Status:             m.Status,
		DestinationURL:     m.DestinationURL,
		ForwardAttempts:    m.ForwardAttempts,
		MaxAttempts:        m.MaxAttempts,
		LastError:          m.LastError,
		NextRetryAt:        m.NextRetryAt,
		CorrelationID:      m.CorrelationID,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		RecordID:      a.RecordID,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		RecordID:      m.RecordID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
