package schema

import (
	"encoding/json"
	"fmt"

	"schema-relay/internal/domain"
)

// TransformError signals a structurally valid payload that could not be
// mapped to the destination shape. It is permanent and never retried.
type TransformError struct {
	Field  string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", domain.ErrTransform, e.Field, e.Reason)
}

func (e *TransformError) Unwrap() error { return domain.ErrTransform }

// Transform maps a validated payload into the destination shape declared by
// the descriptor: field renames, numeric coercion, enum value translation,
// and constant enrichment. Pure function of its inputs.
func Transform(validated ValidatedPayload, descriptor *domain.SchemaDescriptor) (json.RawMessage, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("schema descriptor is required")
	}

	out := make(map[string]any, len(descriptor.Definition.Fields)+len(descriptor.Definition.Constants))
	for name, value := range descriptor.Definition.Constants {
		out[name] = value
	}

	for _, rule := range descriptor.Definition.Fields {
		value, present := validated[rule.Name]
		if !present || value == nil {
			continue
		}

		mapped, err := mapValue(rule, value)
		if err != nil {
			return nil, err
		}
		out[rule.TargetName()] = mapped
	}

	// Map keys marshal in sorted order, so output is deterministic.
	transformed, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transformed payload: %w", err)
	}

	return transformed, nil
}

func mapValue(rule domain.FieldRule, value any) (any, error) {
	if len(rule.ValueMap) > 0 {
		raw, ok := value.(string)
		if !ok {
			return nil, &TransformError{Field: rule.Name, Reason: "value map requires a string value"}
		}
		mapped, ok := rule.ValueMap[raw]
		if !ok {
			return nil, &TransformError{
				Field:  rule.Name,
				Reason: fmt.Sprintf("value %q has no destination equivalent", raw),
			}
		}
		return mapped, nil
	}

	switch rule.Type {
	case domain.FieldTypeInteger:
		number, ok := value.(json.Number)
		if !ok {
			return value, nil
		}
		parsed, err := number.Int64()
		if err != nil {
			return nil, &TransformError{
				Field:  rule.Name,
				Reason: fmt.Sprintf("value %q cannot be coerced to integer", number.String()),
			}
		}
		return parsed, nil
	case domain.FieldTypeNumber:
		number, ok := value.(json.Number)
		if !ok {
			return value, nil
		}
		parsed, err := number.Float64()
		if err != nil {
			return nil, &TransformError{
				Field:  rule.Name,
				Reason: fmt.Sprintf("value %q cannot be coerced to number", number.String()),
			}
		}
		return parsed, nil
	}

	return value, nil
}
