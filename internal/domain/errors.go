package domain

import "errors"

var (
	// ErrValidation marks structural payload violations; no record is persisted for these.
	ErrValidation = errors.New("validation error")
	// ErrTransform marks payloads that validated but could not be mapped; permanent, never retried.
	ErrTransform = errors.New("transform error")
	// ErrSchemaNotFound is returned when the registry has no matching artifact.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrRegistryUnavailable covers registry transport and timeout failures.
	ErrRegistryUnavailable = errors.New("schema registry unavailable")
	// ErrInvalidQuery is returned for out-of-range pagination parameters.
	ErrInvalidQuery = errors.New("invalid query")

	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
