package storage

import "errors"

// Common storage errors. Stores translate NATS KV key-not-found
// conditions into ErrNotFound so callers never see jetstream sentinels.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")
)
