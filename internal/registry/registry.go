package registry

import (
	"context"

	"schema-relay/internal/domain"
)

// Client is the schema registry port. Version 0 resolves to the latest
// registered version at call time; any other version is fetched exactly.
type Client interface {
	Fetch(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error)
	// Refresh bypasses the latest-version cache and refetches from the registry.
	Refresh(ctx context.Context, name string) (*domain.SchemaDescriptor, error)
	Register(ctx context.Context, name string, definition domain.Definition) (*domain.SchemaDescriptor, error)
}
