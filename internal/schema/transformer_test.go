package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"schema-relay/internal/domain"
)

func contactDescriptor() *domain.SchemaDescriptor {
	return &domain.SchemaDescriptor{
		Name:    "contact-message",
		Version: 1,
		Definition: domain.Definition{
			DestinationURL: "https://external.api/contact",
			Fields: []domain.FieldRule{
				{Name: "name", Type: domain.FieldTypeString, Required: true, Target: "full_name"},
				{Name: "email", Type: domain.FieldTypeString, Required: true, Target: "email_address"},
				{Name: "message", Type: domain.FieldTypeString, Required: true, Target: "msg_body"},
			},
			Constants: map[string]any{"source": "schema-relay"},
		},
		DestinationURL: "https://external.api/contact",
	}
}

func feedbackDescriptor() *domain.SchemaDescriptor {
	return &domain.SchemaDescriptor{
		Name:    "user-feedback",
		Version: 1,
		Definition: domain.Definition{
			DestinationURL: "https://external.api/feedback",
			Fields: []domain.FieldRule{
				{Name: "user_id", Type: domain.FieldTypeString, Required: true, Target: "userId"},
				{Name: "rating", Type: domain.FieldTypeInteger, Required: true, Target: "score"},
				{
					Name: "sentiment", Type: domain.FieldTypeString,
					Enum:     []string{"happy", "neutral", "sad"},
					ValueMap: map[string]string{"happy": "POSITIVE", "neutral": "NEUTRAL", "sad": "NEGATIVE"},
				},
			},
		},
		DestinationURL: "https://external.api/feedback",
	}
}

func mustValidate(t *testing.T, payload string, descriptor *domain.SchemaDescriptor) ValidatedPayload {
	t.Helper()
	validated, err := Validate(json.RawMessage(payload), descriptor)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return validated
}

func TestTransformRenamesAndEnriches(t *testing.T) {
	t.Parallel()

	descriptor := contactDescriptor()
	validated := mustValidate(t, `{"name":"Ada","email":"ada@example.com","message":"hi"}`, descriptor)

	transformed, err := Transform(validated, descriptor)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(transformed, &got); err != nil {
		t.Fatalf("unmarshal transformed: %v", err)
	}

	want := map[string]any{
		"full_name":     "Ada",
		"email_address": "ada@example.com",
		"msg_body":      "hi",
		"source":        "schema-relay",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transformed = %v, want %v", got, want)
	}
}

func TestTransformCoercesNumbers(t *testing.T) {
	t.Parallel()

	descriptor := feedbackDescriptor()
	validated := mustValidate(t, `{"user_id":"u1","rating":4}`, descriptor)

	transformed, err := Transform(validated, descriptor)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if string(transformed) != `{"score":4,"userId":"u1"}` {
		t.Fatalf("transformed = %s", transformed)
	}
}

func TestTransformEnumValueMap(t *testing.T) {
	t.Parallel()

	descriptor := feedbackDescriptor()
	validated := mustValidate(t, `{"user_id":"u1","rating":4,"sentiment":"happy"}`, descriptor)

	transformed, err := Transform(validated, descriptor)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(transformed, &got); err != nil {
		t.Fatalf("unmarshal transformed: %v", err)
	}
	if got["sentiment"] != "POSITIVE" {
		t.Fatalf("sentiment = %v, want POSITIVE", got["sentiment"])
	}
}

func TestTransformUnmappedEnumValue(t *testing.T) {
	t.Parallel()

	descriptor := feedbackDescriptor()
	// Bypass the enum constraint so the transformer sees an unmapped value.
	descriptor.Definition.Fields[2].Enum = []string{"happy", "neutral", "sad", "confused"}

	validated := mustValidate(t, `{"user_id":"u1","rating":4,"sentiment":"confused"}`, descriptor)

	_, err := Transform(validated, descriptor)
	if !errors.Is(err, domain.ErrTransform) {
		t.Fatalf("Transform() error = %v, want ErrTransform", err)
	}

	var transformErr *TransformError
	if !errors.As(err, &transformErr) {
		t.Fatalf("expected TransformError, got %T", err)
	}
	if transformErr.Field != "sentiment" {
		t.Fatalf("Field = %q, want sentiment", transformErr.Field)
	}
}

func TestTransformIsPure(t *testing.T) {
	t.Parallel()

	descriptor := contactDescriptor()
	validated := mustValidate(t, `{"name":"Ada","email":"ada@example.com","message":"hi"}`, descriptor)

	first, err := Transform(validated, descriptor)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	second, err := Transform(validated, descriptor)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("Transform() not deterministic: %s vs %s", first, second)
	}
}
