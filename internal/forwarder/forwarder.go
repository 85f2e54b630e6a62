package forwarder

import (
	"context"
	"encoding/json"
)

// Forwarder is the outbound delivery port. The destination URL comes from
// the record's schema descriptor, not from fixed configuration.
type Forwarder interface {
	Forward(ctx context.Context, destinationURL string, payload json.RawMessage) (*ForwardResponse, error)
}

// ForwardResponse stores destination call metadata for audit and persistence.
type ForwardResponse struct {
	StatusCode int
	Body       string
	ReceiptID  string
}
