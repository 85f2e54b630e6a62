package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestHTTPForwarderForwardSuccess(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Request-ID", "receipt-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := NewHTTPForwarder(0)

	resp, err := f.Forward(context.Background(), server.URL, json.RawMessage(`{"order_id":1,"total":9.99}`))
	if err != nil {
		t.Fatalf("Forward() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if resp.ReceiptID != "receipt-1" {
		t.Fatalf("ReceiptID = %q, want receipt-1", resp.ReceiptID)
	}

	if gotBody["order_id"] != float64(1) {
		t.Fatalf("order_id = %v, want 1", gotBody["order_id"])
	}
}

func TestHTTPForwarderStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "request timeout is transient", statusCode: http.StatusRequestTimeout, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "unprocessable entity is permanent", statusCode: http.StatusUnprocessableEntity, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("destination failed"))
			}))
			defer server.Close()

			f := NewHTTPForwarder(0)

			_, err := f.Forward(context.Background(), server.URL, json.RawMessage(`{"a":1}`))
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var forwardErr *ForwardError
			if !errors.As(err, &forwardErr) {
				t.Fatalf("expected ForwardError, got %T", err)
			}
			if forwardErr.StatusCode != tc.statusCode {
				t.Fatalf("ForwardError.StatusCode = %d, want %d", forwardErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestHTTPForwarderMalformedURLIsPermanent(t *testing.T) {
	t.Parallel()

	f := NewHTTPForwarder(0)

	_, err := f.Forward(context.Background(), "not a url", json.RawMessage(`{"a":1}`))
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
	if IsTransient(err) {
		t.Fatalf("IsTransient() = true, want false for malformed url (err=%v)", err)
	}
}

func TestHTTPForwarderTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	f, err := NewHTTPForwarderWithClient(client)
	if err != nil {
		t.Fatalf("NewHTTPForwarderWithClient() error = %v", err)
	}

	_, err = f.Forward(context.Background(), server.URL, json.RawMessage(`{"a":1}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}

	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestHTTPForwarderConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	f := NewHTTPForwarder(0)

	_, err := f.Forward(context.Background(), server.URL, json.RawMessage(`{"a":1}`))
	if err == nil {
		t.Fatal("expected error for refused connection")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}
