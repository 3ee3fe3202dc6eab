package clarion

import "fmt"

// ServiceLifecycle defines how many instances of a registered service exist
// and how long they live within the dependency injection container.
type ServiceLifecycle string

const (
	// LifecycleSingleton creates a single instance shared across the entire
	// application lifetime. The instance is created on first access and
	// reused for all subsequent requests.
	LifecycleSingleton ServiceLifecycle = "singleton"

	// LifecycleTransient creates a new instance every time the service is
	// requested. No caching is performed.
	LifecycleTransient ServiceLifecycle = "transient"

	// LifecycleScoped creates one instance per named scope. The instance is
	// cached within the scope and reused for all requests within it.
	LifecycleScoped ServiceLifecycle = "scoped"
)

// DefaultScopeID is the scope used for scoped services when no explicit
// scope id is supplied.
const DefaultScopeID = "default"

// String returns the string representation of the lifecycle.
func (l ServiceLifecycle) String() string {
	return string(l)
}

// IsValid returns true if the lifecycle is one of the defined constants.
func (l ServiceLifecycle) IsValid() bool {
	switch l {
	case LifecycleSingleton, LifecycleTransient, LifecycleScoped:
		return true
	default:
		return false
	}
}

// IsCacheable returns true if instances of this lifecycle are cached and
// reused rather than recreated on every request.
func (l ServiceLifecycle) IsCacheable() bool {
	return l == LifecycleSingleton || l == LifecycleScoped
}

// ParseServiceLifecycle parses a string into a ServiceLifecycle, returning
// an error if the string is not a valid lifecycle.
func ParseServiceLifecycle(s string) (ServiceLifecycle, error) {
	lifecycle := ServiceLifecycle(s)
	if !lifecycle.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidServiceLifecycle, s)
	}
	return lifecycle, nil
}

// DefaultServiceLifecycle returns the lifecycle used when no explicit
// lifecycle is specified at registration.
func DefaultServiceLifecycle() ServiceLifecycle {
	return LifecycleSingleton
}
