package domain

import (
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func orderDefinition() Definition {
	return Definition{
		DestinationURL: "https://destination.example/orders",
		Fields: []FieldRule{
			{Name: "id", Type: FieldTypeInteger, Required: true, Target: "order_id"},
			{Name: "amount", Type: FieldTypeNumber, Required: true, Minimum: floatPtr(0)},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr bool
	}{
		{
			name:   "valid definition",
			mutate: func(d *Definition) {},
		},
		{
			name: "missing destination",
			mutate: func(d *Definition) {
				d.DestinationURL = ""
			},
			wantErr: true,
		},
		{
			name: "malformed destination",
			mutate: func(d *Definition) {
				d.DestinationURL = "not a url"
			},
			wantErr: true,
		},
		{
			name: "no fields",
			mutate: func(d *Definition) {
				d.Fields = nil
			},
			wantErr: true,
		},
		{
			name: "duplicate field name",
			mutate: func(d *Definition) {
				d.Fields = append(d.Fields, FieldRule{Name: "id", Type: FieldTypeInteger})
			},
			wantErr: true,
		},
		{
			name: "duplicate target",
			mutate: func(d *Definition) {
				d.Fields = append(d.Fields, FieldRule{Name: "other", Type: FieldTypeString, Target: "order_id"})
			},
			wantErr: true,
		},
		{
			name: "invalid type",
			mutate: func(d *Definition) {
				d.Fields[0].Type = FieldType("decimal")
			},
			wantErr: true,
		},
		{
			name: "negative min length",
			mutate: func(d *Definition) {
				d.Fields[0].MinLength = intPtr(-1)
			},
			wantErr: true,
		},
		{
			name: "max length below min length",
			mutate: func(d *Definition) {
				d.Fields[0].MinLength = intPtr(5)
				d.Fields[0].MaxLength = intPtr(2)
			},
			wantErr: true,
		},
		{
			name: "maximum below minimum",
			mutate: func(d *Definition) {
				d.Fields[1].Minimum = floatPtr(10)
				d.Fields[1].Maximum = floatPtr(1)
			},
			wantErr: true,
		},
		{
			name: "enum on non-string field",
			mutate: func(d *Definition) {
				d.Fields[0].Enum = []string{"1", "2"}
			},
			wantErr: true,
		},
		{
			name: "enum on string field",
			mutate: func(d *Definition) {
				d.Fields = append(d.Fields, FieldRule{
					Name: "status",
					Type: FieldTypeString,
					Enum: []string{"new", "paid"},
				})
			},
		},
		{
			name: "value map without enum",
			mutate: func(d *Definition) {
				d.Fields[0].ValueMap = map[string]string{"a": "b"}
			},
			wantErr: true,
		},
		{
			name: "constant collides with target",
			mutate: func(d *Definition) {
				d.Constants = map[string]any{"order_id": "x"}
			},
			wantErr: true,
		},
		{
			name: "constant with free name",
			mutate: func(d *Definition) {
				d.Constants = map[string]any{"source": "schema-relay"}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := orderDefinition()
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestFieldRuleTargetName(t *testing.T) {
	t.Parallel()

	rule := FieldRule{Name: "name", Target: "full_name"}
	if got := rule.TargetName(); got != "full_name" {
		t.Fatalf("TargetName() = %q, want full_name", got)
	}

	rule.Target = ""
	if got := rule.TargetName(); got != "name" {
		t.Fatalf("TargetName() = %q, want name", got)
	}
}

func TestSchemaDescriptorValidate(t *testing.T) {
	t.Parallel()

	descriptor := SchemaDescriptor{
		Name:           "order",
		Version:        1,
		Definition:     orderDefinition(),
		DestinationURL: "https://destination.example/orders",
	}
	if err := descriptor.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	descriptor.Name = ""
	if err := descriptor.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	descriptor.Name = "order"
	descriptor.Version = 0
	if err := descriptor.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
