package queue

import (
	"fmt"
	"strings"
)

// ForwardMessage is the broker payload for record delivery. It carries only
// identifiers; the worker reloads the record from storage so state survives
// broker loss.
type ForwardMessage struct {
	RecordID      int64  `json:"recordId"`
	SchemaName    string `json:"schemaName"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m ForwardMessage) Validate() error {
	if m.RecordID <= 0 {
		return fmt.Errorf("recordId must be positive")
	}
	if strings.TrimSpace(m.SchemaName) == "" {
		return fmt.Errorf("schemaName is required")
	}
	return nil
}
