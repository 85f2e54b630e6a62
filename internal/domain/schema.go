package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldType is the declared structural type of a payload field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
)

func (t FieldType) String() string { return string(t) }

func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeNumber, FieldTypeBoolean, FieldTypeObject, FieldTypeArray:
		return true
	}
	return false
}

// FieldRule declares structure and mapping for a single payload field.
// Target renames the field in the transformed payload; ValueMap translates
// enum values to their destination equivalents.
type FieldRule struct {
	Name      string            `json:"name"`
	Type      FieldType         `json:"type"`
	Required  bool              `json:"required"`
	MinLength *int              `json:"minLength,omitempty"`
	MaxLength *int              `json:"maxLength,omitempty"`
	Minimum   *float64          `json:"minimum,omitempty"`
	Maximum   *float64          `json:"maximum,omitempty"`
	Enum      []string          `json:"enum,omitempty"`
	Target    string            `json:"target,omitempty"`
	ValueMap  map[string]string `json:"valueMap,omitempty"`
}

// TargetName returns the transformed field name.
func (f FieldRule) TargetName() string {
	if strings.TrimSpace(f.Target) != "" {
		return f.Target
	}
	return f.Name
}

// Definition is the registry artifact content: structural rules, mapping
// rules, and the destination the transformed payload is forwarded to.
type Definition struct {
	DestinationURL string         `json:"destinationUrl"`
	Fields         []FieldRule    `json:"fields"`
	Constants      map[string]any `json:"constants,omitempty"`
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.DestinationURL) == "" {
		return fmt.Errorf("%w: destinationUrl is required", ErrValidation)
	}
	if _, err := url.ParseRequestURI(d.DestinationURL); err != nil {
		return fmt.Errorf("%w: invalid destinationUrl: %v", ErrValidation, err)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("%w: definition must declare at least one field", ErrValidation)
	}

	seen := make(map[string]struct{}, len(d.Fields))
	targets := make(map[string]struct{}, len(d.Fields))
	for _, field := range d.Fields {
		if strings.TrimSpace(field.Name) == "" {
			return fmt.Errorf("%w: field name is required", ErrValidation)
		}
		if !field.Type.IsValid() {
			return fmt.Errorf("%w: field %q has invalid type %q", ErrValidation, field.Name, field.Type)
		}
		if _, ok := seen[field.Name]; ok {
			return fmt.Errorf("%w: duplicate field %q", ErrValidation, field.Name)
		}
		seen[field.Name] = struct{}{}

		target := field.TargetName()
		if _, ok := targets[target]; ok {
			return fmt.Errorf("%w: duplicate target field %q", ErrValidation, target)
		}
		targets[target] = struct{}{}

		if field.MinLength != nil && *field.MinLength < 0 {
			return fmt.Errorf("%w: field %q minLength must be >= 0", ErrValidation, field.Name)
		}
		if field.MinLength != nil && field.MaxLength != nil && *field.MaxLength < *field.MinLength {
			return fmt.Errorf("%w: field %q maxLength must be >= minLength", ErrValidation, field.Name)
		}
		if field.Minimum != nil && field.Maximum != nil && *field.Maximum < *field.Minimum {
			return fmt.Errorf("%w: field %q maximum must be >= minimum", ErrValidation, field.Name)
		}
		if len(field.Enum) > 0 && field.Type != FieldTypeString {
			return fmt.Errorf("%w: field %q declares enum on non-string type %q", ErrValidation, field.Name, field.Type)
		}
		if len(field.ValueMap) > 0 && len(field.Enum) == 0 {
			return fmt.Errorf("%w: field %q declares valueMap without enum", ErrValidation, field.Name)
		}
	}

	for name := range d.Constants {
		if _, ok := targets[name]; ok {
			return fmt.Errorf("%w: constant %q collides with a mapped field", ErrValidation, name)
		}
	}

	return nil
}

// Field looks up a rule by source field name.
func (d Definition) Field(name string) (FieldRule, bool) {
	for _, field := range d.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldRule{}, false
}

// SchemaDescriptor identifies one immutable schema version fetched from the
// registry. A new version is a new descriptor, never an in-place update.
type SchemaDescriptor struct {
	Name           string
	Version        int
	Definition     Definition
	DestinationURL string
}

func (s SchemaDescriptor) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: schema name is required", ErrValidation)
	}
	if s.Version < 1 {
		return fmt.Errorf("%w: schema version must be >= 1", ErrValidation)
	}
	return s.Definition.Validate()
}
