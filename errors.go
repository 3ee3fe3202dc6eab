package clarion

import (
	"errors"
)

// Registry errors
var (
	// Registration errors
	ErrRegistrationInvalid     = errors.New("registration requires exactly one of instance or factory")
	ErrInvalidServiceLifecycle = errors.New("invalid service lifecycle")

	// Resolution errors
	ErrServiceNotFound    = errors.New("service not registered")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrDependencyMissing  = errors.New("service depends on unregistered service")
	ErrServiceWrongType   = errors.New("service doesn't satisfy required type")

	// Warmup errors
	ErrWarmupFailed = errors.New("service warmup failed")
)

// Observer errors
var (
	ErrNoSubjectForEventEmission = errors.New("no subject available for event emission")
	ErrObserverNil               = errors.New("observer cannot be nil")
)
