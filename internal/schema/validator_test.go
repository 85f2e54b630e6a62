package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"schema-relay/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func orderDescriptor() *domain.SchemaDescriptor {
	return &domain.SchemaDescriptor{
		Name:    "order",
		Version: 1,
		Definition: domain.Definition{
			DestinationURL: "https://destination.example/orders",
			Fields: []domain.FieldRule{
				{Name: "id", Type: domain.FieldTypeInteger, Required: true, Target: "order_id"},
				{Name: "amount", Type: domain.FieldTypeNumber, Required: true, Minimum: floatPtr(0)},
				{Name: "note", Type: domain.FieldTypeString, MaxLength: intPtr(10)},
				{Name: "status", Type: domain.FieldTypeString, Enum: []string{"new", "paid"}},
			},
		},
		DestinationURL: "https://destination.example/orders",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		payload        string
		wantField      string
		wantConstraint string
	}{
		{
			name:    "valid payload",
			payload: `{"id": 1, "amount": 9.99}`,
		},
		{
			name:    "valid payload with optional fields",
			payload: `{"id": 1, "amount": 9.99, "note": "thanks", "status": "paid"}`,
		},
		{
			name:      "missing required field",
			payload:   `{"id": 1}`,
			wantField: "amount",
		},
		{
			name:      "null counts as missing",
			payload:   `{"id": 1, "amount": null}`,
			wantField: "amount",
		},
		{
			name:      "not an object",
			payload:   `[1, 2]`,
			wantField: "$",
		},
		{
			name:      "malformed json",
			payload:   `{"id":`,
			wantField: "$",
		},
		{
			name:      "wrong type for integer",
			payload:   `{"id": "1", "amount": 9.99}`,
			wantField: "id",
		},
		{
			name:      "fractional value for integer",
			payload:   `{"id": 1.5, "amount": 9.99}`,
			wantField: "id",
		},
		{
			name:      "below minimum",
			payload:   `{"id": 1, "amount": -3}`,
			wantField: "amount",
		},
		{
			name:      "string too long",
			payload:   `{"id": 1, "amount": 1, "note": "this is far too long"}`,
			wantField: "note",
		},
		{
			name:      "enum violation",
			payload:   `{"id": 1, "amount": 1, "status": "shipped"}`,
			wantField: "status",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			validated, err := Validate(json.RawMessage(tt.payload), orderDescriptor())
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				if validated == nil {
					t.Fatal("Validate() returned nil payload")
				}
				return
			}

			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %T", err)
			}
			if fieldErr.Field != tt.wantField {
				t.Fatalf("Field = %q, want %q", fieldErr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateFailFast(t *testing.T) {
	t.Parallel()

	// Both fields violate; only the first declared field is reported.
	_, err := Validate(json.RawMessage(`{"id": "x", "amount": "y"}`), orderDescriptor())

	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldError, got %T", err)
	}
	if fieldErr.Field != "id" {
		t.Fatalf("Field = %q, want id (fail-fast on first declared field)", fieldErr.Field)
	}
}

func TestValidateDeterministic(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"id": 1, "amount": 9.99, "status": "new"}`)

	first, err := Validate(payload, orderDescriptor())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	second, err := Validate(payload, orderDescriptor())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("Validate() not deterministic: %s vs %s", firstJSON, secondJSON)
	}
}
