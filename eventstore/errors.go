package eventstore

import "errors"

// Static errors for the event store
var (
	ErrEmptyDSN         = errors.New("event store DSN cannot be empty")
	ErrNotConnected     = errors.New("event store not connected")
	ErrEventIDEmpty     = errors.New("event id cannot be empty")
	ErrEventTypeEmpty   = errors.New("event type cannot be empty")
	ErrDuplicateEventID = errors.New("event id already stored")
	ErrEventNotFound    = errors.New("event not found")
)
