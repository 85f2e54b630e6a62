package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a record.
type Status string

const (
	StatusPersisted       Status = "PERSISTED"
	StatusForwarding      Status = "FORWARDING"
	StatusForwarded       Status = "FORWARDED"
	StatusFailedTransform Status = "FAILED_TRANSFORM"
	StatusFailedForward   Status = "FAILED_FORWARD"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPersisted, StatusForwarding, StatusForwarded, StatusFailedTransform, StatusFailedForward:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusForwarded, StatusFailedTransform, StatusFailedForward:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Record is the durable audit row for one ingest transaction. The auto-assigned
// ID is monotonic and serves as the stable pagination key.
type Record struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	SchemaName         string          `gorm:"type:varchar(100);not null"`
	SchemaVersion      int             `gorm:"not null"`
	RawPayload         json.RawMessage `gorm:"type:jsonb;not null"`
	TransformedPayload json.RawMessage `gorm:"type:jsonb"`
	Status             Status          `gorm:"type:varchar(20);not null"`
	DestinationURL     string          `gorm:"type:varchar(255);not null"`
	ForwardAttempts    int             `gorm:"not null;default:0"`
	MaxAttempts        int             `gorm:"not null;default:5"`
	LastError          *string         `gorm:"type:text"`
	NextRetryAt        *time.Time
	CorrelationID      string `gorm:"type:varchar(36);not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r *Record) Validate() error {
	if strings.TrimSpace(r.SchemaName) == "" {
		return fmt.Errorf("%w: schema name is required", ErrValidation)
	}
	if r.SchemaVersion < 1 {
		return fmt.Errorf("%w: schema version must be >= 1", ErrValidation)
	}
	if len(r.RawPayload) == 0 {
		return fmt.Errorf("%w: raw payload is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, r.Status)
	}

	// Transformed payload is present exactly when transformation succeeded.
	if r.Status == StatusFailedTransform {
		if len(r.TransformedPayload) != 0 {
			return fmt.Errorf("%w: transformed payload must be empty for status %s", ErrValidation, r.Status)
		}
		return nil
	}
	if len(r.TransformedPayload) == 0 {
		return fmt.Errorf("%w: transformed payload is required for status %s", ErrValidation, r.Status)
	}

	return nil
}
