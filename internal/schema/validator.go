package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"schema-relay/internal/domain"
)

// FieldError reports the first structural violation encountered, carrying the
// failing field path and the violated constraint.
type FieldError struct {
	Field      string
	Constraint string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", domain.ErrValidation, e.Field, e.Constraint)
}

func (e *FieldError) Unwrap() error { return domain.ErrValidation }

// ValidatedPayload is a decoded payload that passed structural validation.
// Numeric values are kept as json.Number so transformation stays lossless.
type ValidatedPayload map[string]any

// Validate checks a raw payload against the descriptor's structural rules.
// It is fail-fast and deterministic: identical inputs always yield the
// identical result, and scanning stops at the first violation.
func Validate(raw json.RawMessage, descriptor *domain.SchemaDescriptor) (ValidatedPayload, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("schema descriptor is required")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, &FieldError{Field: "$", Constraint: "payload must be a JSON object"}
	}

	for _, rule := range descriptor.Definition.Fields {
		value, present := payload[rule.Name]
		if !present || value == nil {
			if rule.Required {
				return nil, &FieldError{Field: rule.Name, Constraint: "required field is missing"}
			}
			continue
		}

		if err := checkField(rule, value); err != nil {
			return nil, err
		}
	}

	return ValidatedPayload(payload), nil
}

func checkField(rule domain.FieldRule, value any) error {
	switch rule.Type {
	case domain.FieldTypeString:
		return checkString(rule, value)
	case domain.FieldTypeInteger:
		return checkInteger(rule, value)
	case domain.FieldTypeNumber:
		return checkNumber(rule, value)
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeError(rule)
		}
	case domain.FieldTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return typeError(rule)
		}
	case domain.FieldTypeArray:
		if _, ok := value.([]any); !ok {
			return typeError(rule)
		}
	}
	return nil
}

func checkString(rule domain.FieldRule, value any) error {
	s, ok := value.(string)
	if !ok {
		return typeError(rule)
	}

	length := len([]rune(s))
	if rule.MinLength != nil && length < *rule.MinLength {
		return &FieldError{
			Field:      rule.Name,
			Constraint: fmt.Sprintf("length must be >= %d", *rule.MinLength),
		}
	}
	if rule.MaxLength != nil && length > *rule.MaxLength {
		return &FieldError{
			Field:      rule.Name,
			Constraint: fmt.Sprintf("length must be <= %d", *rule.MaxLength),
		}
	}

	if len(rule.Enum) > 0 {
		for _, allowed := range rule.Enum {
			if s == allowed {
				return nil
			}
		}
		return &FieldError{
			Field:      rule.Name,
			Constraint: fmt.Sprintf("value %q is not one of the allowed values", s),
		}
	}

	return nil
}

func checkInteger(rule domain.FieldRule, value any) error {
	number, ok := value.(json.Number)
	if !ok {
		return typeError(rule)
	}
	parsed, err := number.Int64()
	if err != nil {
		return typeError(rule)
	}
	return checkBounds(rule, float64(parsed))
}

func checkNumber(rule domain.FieldRule, value any) error {
	number, ok := value.(json.Number)
	if !ok {
		return typeError(rule)
	}
	parsed, err := number.Float64()
	if err != nil {
		return typeError(rule)
	}
	return checkBounds(rule, parsed)
}

func checkBounds(rule domain.FieldRule, value float64) error {
	if rule.Minimum != nil && value < *rule.Minimum {
		return &FieldError{
			Field:      rule.Name,
			Constraint: fmt.Sprintf("value must be >= %v", *rule.Minimum),
		}
	}
	if rule.Maximum != nil && value > *rule.Maximum {
		return &FieldError{
			Field:      rule.Name,
			Constraint: fmt.Sprintf("value must be <= %v", *rule.Maximum),
		}
	}
	return nil
}

func typeError(rule domain.FieldRule) error {
	return &FieldError{
		Field:      rule.Name,
		Constraint: fmt.Sprintf("must be of type %s", rule.Type),
	}
}
