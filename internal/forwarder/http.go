package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultForwardTimeout = 10 * time.Second

// HTTPForwarder delivers transformed payloads to destination endpoints.
// Retrying is the caller's job; the forwarder only classifies the outcome.
type HTTPForwarder struct {
	client *resty.Client
}

func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &HTTPForwarder{client: client}
}

func NewHTTPForwarderWithClient(client *resty.Client) (*HTTPForwarder, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultForwardTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPForwarder{client: client}, nil
}

func (f *HTTPForwarder) Forward(ctx context.Context, destinationURL string, payload json.RawMessage) (*ForwardResponse, error) {
	if f == nil || f.client == nil {
		return nil, fmt.Errorf("forwarder is not initialized")
	}

	trimmedURL := strings.TrimSpace(destinationURL)
	if trimmedURL == "" {
		return nil, &ForwardError{Message: "destination url is required", Transient: false}
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, &ForwardError{
			Message:   fmt.Sprintf("malformed destination url %q", trimmedURL),
			Transient: false,
			Cause:     err,
		}
	}
	if len(payload) == 0 {
		return nil, &ForwardError{Message: "payload is required", Transient: false}
	}

	response, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(payload)).
		Post(trimmedURL)
	if err != nil {
		return nil, &ForwardError{
			Message:   "destination request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ForwardError{
			Message:   "destination returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ForwardResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			ReceiptID:  receiptID(response),
		}, nil
	}

	return nil, &ForwardError{
		StatusCode: statusCode,
		Message:    forwardErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= http.StatusInternalServerError && statusCode <= 599
}

func forwardErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("destination returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func receiptID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
