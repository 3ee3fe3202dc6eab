// Package clarion provides the service infrastructure core for the Clarion
// CRM platform. It implements a dependency injection container with
// singleton, transient and scoped lifecycles, lazy factory-based
// instantiation, dependency graph validation and topological
// initialization ordering.
//
// Basic usage:
//
//	reg := clarion.NewServiceRegistry(clarion.WithRegistryLogger(logger))
//	reg.RegisterSingleton("store", newStore, "config")
//	store, err := clarion.Resolve[*eventstore.Store](reg, "store")
package clarion

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Dependencies carries the resolved dependencies of a service into its
// factory, keyed by the dependency's registered name.
type Dependencies map[string]any

// Factory constructs a service instance from its resolved dependencies.
// A factory is invoked lazily on first resolution (or on every resolution
// for transient services) and must be safe to call from any goroutine.
type Factory func(deps Dependencies) (any, error)

// ServiceDescriptor holds the registration record for a single service.
// Descriptors are created at registration time and mutated only by the
// registry while resolving instances.
type ServiceDescriptor struct {
	name         string
	lifecycle    ServiceLifecycle
	dependencies []string
	tags         map[string]struct{}
	factory      Factory

	mu           sync.RWMutex
	instance     any
	built        bool
	initializing atomic.Bool
}

// Name returns the unique name the service was registered under.
func (d *ServiceDescriptor) Name() string { return d.name }

// Lifecycle returns the lifecycle policy of the service.
func (d *ServiceDescriptor) Lifecycle() ServiceLifecycle { return d.lifecycle }

// Dependencies returns a copy of the declared dependency names, in
// declaration order.
func (d *ServiceDescriptor) Dependencies() []string {
	deps := make([]string, len(d.dependencies))
	copy(deps, d.dependencies)
	return deps
}

// Tags returns the sorted tag set of the service.
func (d *ServiceDescriptor) Tags() []string {
	tags := make([]string, 0, len(d.tags))
	for tag := range d.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// HasTag reports whether the service carries the given tag.
func (d *ServiceDescriptor) HasTag(tag string) bool {
	_, ok := d.tags[tag]
	return ok
}

func (d *ServiceDescriptor) cached() (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instance, d.built
}

// setInitializing flips the in-construction flag. It deliberately avoids
// the descriptor mutex, which the singleton path already holds during
// construction.
func (d *ServiceDescriptor) setInitializing(v bool) {
	d.initializing.Store(v)
}

// ServiceRegistry is a thread-safe dependency injection container. Services
// are registered under unique names with either a pre-built instance or a
// factory, and resolved lazily with lifecycle and cycle-safety guarantees.
//
// A registry-wide lock protects the descriptor and scope maps during
// structural mutation; each descriptor carries its own lock for the
// singleton double-checked construction pattern, so concurrent first-time
// resolution of independent singletons does not serialize.
type ServiceRegistry struct {
	mu          sync.RWMutex
	descriptors map[string]*ServiceDescriptor
	scopes      map[string]map[string]any
	logger      Logger
}

// RegistryOption configures a ServiceRegistry at construction time.
type RegistryOption func(*ServiceRegistry)

// WithRegistryLogger sets the logger used for registry diagnostics.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *ServiceRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry(opts ...RegistryOption) *ServiceRegistry {
	r := &ServiceRegistry{
		descriptors: make(map[string]*ServiceDescriptor),
		scopes:      make(map[string]map[string]any),
		logger:      NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type serviceSettings struct {
	instance     any
	hasInstance  bool
	factory      Factory
	lifecycle    ServiceLifecycle
	dependencies []string
	tags         []string
}

// ServiceOption configures a single service registration.
type ServiceOption func(*serviceSettings)

// WithInstance registers a pre-built instance. Mutually exclusive with
// WithFactory.
func WithInstance(instance any) ServiceOption {
	return func(s *serviceSettings) {
		s.instance = instance
		s.hasInstance = true
	}
}

// WithFactory registers a factory used to lazily construct the service.
// Mutually exclusive with WithInstance.
func WithFactory(factory Factory) ServiceOption {
	return func(s *serviceSettings) {
		s.factory = factory
	}
}

// WithLifecycle sets the lifecycle policy. Defaults to singleton.
func WithLifecycle(lifecycle ServiceLifecycle) ServiceOption {
	return func(s *serviceSettings) {
		s.lifecycle = lifecycle
	}
}

// WithDependencies declares the names of services this service depends on.
// The resolved instances are passed to the factory in a Dependencies map.
func WithDependencies(names ...string) ServiceOption {
	return func(s *serviceSettings) {
		s.dependencies = append(s.dependencies, names...)
	}
}

// WithTags attaches tags to the service for group resolution via
// GetAllByTag.
func WithTags(tags ...string) ServiceOption {
	return func(s *serviceSettings) {
		s.tags = append(s.tags, tags...)
	}
}

// Register records a service under the given name, overwriting any prior
// registration. Exactly one of WithInstance or WithFactory must be
// supplied; anything else fails with ErrRegistrationInvalid. A pre-built
// instance is always treated as an already-constructed singleton.
func (r *ServiceRegistry) Register(name string, opts ...ServiceOption) error {
	settings := &serviceSettings{lifecycle: DefaultServiceLifecycle()}
	for _, opt := range opts {
		opt(settings)
	}

	if settings.hasInstance == (settings.factory != nil) {
		return fmt.Errorf("%w: service %q", ErrRegistrationInvalid, name)
	}
	if !settings.lifecycle.IsValid() {
		return fmt.Errorf("%w: service %q: %s", ErrInvalidServiceLifecycle, name, settings.lifecycle)
	}

	tags := make(map[string]struct{}, len(settings.tags))
	for _, tag := range settings.tags {
		tags[tag] = struct{}{}
	}

	descriptor := &ServiceDescriptor{
		name:         name,
		lifecycle:    settings.lifecycle,
		dependencies: settings.dependencies,
		tags:         tags,
		factory:      settings.factory,
	}
	if settings.hasInstance {
		descriptor.instance = settings.instance
		descriptor.built = true
	}

	r.mu.Lock()
	r.descriptors[name] = descriptor
	r.mu.Unlock()

	r.logger.Debug("Service registered", "service", name, "lifecycle", descriptor.lifecycle, "dependencies", descriptor.dependencies)
	return nil
}

// RegisterInstance registers a pre-built instance as a singleton.
func (r *ServiceRegistry) RegisterInstance(name string, instance any) error {
	return r.Register(name, WithInstance(instance))
}

// RegisterFactory registers a factory with an explicit lifecycle.
func (r *ServiceRegistry) RegisterFactory(name string, factory Factory, lifecycle ServiceLifecycle, deps ...string) error {
	return r.Register(name, WithFactory(factory), WithLifecycle(lifecycle), WithDependencies(deps...))
}

// RegisterSingleton registers a factory with singleton lifecycle.
func (r *ServiceRegistry) RegisterSingleton(name string, factory Factory, deps ...string) error {
	return r.RegisterFactory(name, factory, LifecycleSingleton, deps...)
}

// RegisterTransient registers a factory with transient lifecycle.
func (r *ServiceRegistry) RegisterTransient(name string, factory Factory, deps ...string) error {
	return r.RegisterFactory(name, factory, LifecycleTransient, deps...)
}

// RegisterScoped registers a factory with scoped lifecycle.
func (r *ServiceRegistry) RegisterScoped(name string, factory Factory, deps ...string) error {
	return r.RegisterFactory(name, factory, LifecycleScoped, deps...)
}

// Get resolves a service by name, constructing it (and its transitive
// dependencies) as required by its lifecycle. Scoped services resolve in
// the implicit DefaultScopeID scope.
func (r *ServiceRegistry) Get(name string) (any, error) {
	return r.resolve(&resolution{}, name, DefaultScopeID)
}

// GetInScope resolves a service within the given scope. The scope id only
// affects services registered with LifecycleScoped; singleton and
// transient services ignore it.
func (r *ServiceRegistry) GetInScope(name, scopeID string) (any, error) {
	if scopeID == "" {
		scopeID = DefaultScopeID
	}
	return r.resolve(&resolution{}, name, scopeID)
}

// Resolve resolves a service by name and asserts it to the requested type,
// giving dependent code a compile-time-checked handle instead of an
// untyped lookup.
func Resolve[T any](r *ServiceRegistry, name string) (T, error) {
	return ResolveInScope[T](r, name, DefaultScopeID)
}

// ResolveInScope is the scope-aware variant of Resolve.
func ResolveInScope[T any](r *ServiceRegistry, name, scopeID string) (T, error) {
	var zero T
	instance, err := r.GetInScope(name, scopeID)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: service %q is %T, not %T", ErrServiceWrongType, name, instance, zero)
	}
	return typed, nil
}

// GetAllByTag resolves every registered service carrying the given tag,
// triggering construction where needed. The result maps service name to
// instance.
func (r *ServiceRegistry) GetAllByTag(tag string) (map[string]any, error) {
	r.mu.RLock()
	names := make([]string, 0)
	for name, descriptor := range r.descriptors {
		if descriptor.HasTag(tag) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)

	instances := make(map[string]any, len(names))
	for _, name := range names {
		instance, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		instances[name] = instance
	}
	return instances, nil
}

// resolution tracks the ordered set of service names currently being
// constructed within one resolution call tree. It is the cycle-detection
// analogue of a thread-local initialization stack: each top-level Get
// starts a fresh resolution, so concurrent construction of unrelated
// services never produces false positives.
type resolution struct {
	stack []string
}

func (res *resolution) push(name string) error {
	for i, inProgress := range res.stack {
		if inProgress == name {
			cycle := append(append([]string{}, res.stack[i:]...), name)
			return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, " -> "))
		}
	}
	res.stack = append(res.stack, name)
	return nil
}

func (res *resolution) pop() {
	res.stack = res.stack[:len(res.stack)-1]
}

func (r *ServiceRegistry) resolve(res *resolution, name, scopeID string) (any, error) {
	r.mu.RLock()
	descriptor, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}

	// Cycle detection must run before the singleton lock is taken: a
	// re-entrant resolve of a name already on the stack would otherwise
	// block on its own descriptor mutex instead of failing.
	if err := res.push(name); err != nil {
		return nil, err
	}
	defer res.pop()

	switch descriptor.lifecycle {
	case LifecycleSingleton:
		return r.resolveSingleton(res, descriptor, scopeID)
	case LifecycleTransient:
		return r.construct(res, descriptor, scopeID)
	case LifecycleScoped:
		return r.resolveScoped(res, descriptor, scopeID)
	default:
		return nil, fmt.Errorf("%w: service %q: %s", ErrInvalidServiceLifecycle, name, descriptor.lifecycle)
	}
}

// resolveSingleton returns the cached instance when present, otherwise
// constructs exactly once under the descriptor's lock. The instance is
// re-checked after acquiring the lock so that two goroutines racing on
// first access invoke the factory only once.
func (r *ServiceRegistry) resolveSingleton(res *resolution, descriptor *ServiceDescriptor, scopeID string) (any, error) {
	if instance, built := descriptor.cached(); built {
		return instance, nil
	}

	descriptor.mu.Lock()
	defer descriptor.mu.Unlock()
	if descriptor.built {
		return descriptor.instance, nil
	}

	instance, err := r.construct(res, descriptor, scopeID)
	if err != nil {
		return nil, err
	}
	descriptor.instance = instance
	descriptor.built = true
	return instance, nil
}

func (r *ServiceRegistry) resolveScoped(res *resolution, descriptor *ServiceDescriptor, scopeID string) (any, error) {
	r.mu.RLock()
	instance, ok := r.scopes[scopeID][descriptor.name]
	r.mu.RUnlock()
	if ok {
		return instance, nil
	}

	instance, err := r.construct(res, descriptor, scopeID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// First writer wins if another goroutine constructed concurrently.
	if existing, ok := r.scopes[scopeID][descriptor.name]; ok {
		return existing, nil
	}
	if r.scopes[scopeID] == nil {
		r.scopes[scopeID] = make(map[string]any)
	}
	r.scopes[scopeID][descriptor.name] = instance
	return instance, nil
}

// construct invokes the descriptor's factory with its resolved
// dependencies. The caller has already pushed the descriptor onto the
// resolution stack, so recursive resolution of a name currently under
// construction fails with ErrCircularDependency naming the full cycle.
func (r *ServiceRegistry) construct(res *resolution, descriptor *ServiceDescriptor, scopeID string) (any, error) {
	if descriptor.factory == nil {
		// Pre-built registrations are served from the cache; reaching the
		// factory path without one means the cache was explicitly reset.
		return nil, fmt.Errorf("%w: service %q has no factory", ErrRegistrationInvalid, descriptor.name)
	}

	descriptor.setInitializing(true)
	defer descriptor.setInitializing(false)

	deps := make(Dependencies, len(descriptor.dependencies))
	for _, depName := range descriptor.dependencies {
		instance, err := r.resolve(res, depName, scopeID)
		if err != nil {
			return nil, fmt.Errorf("resolving dependency %q of service %q: %w", depName, descriptor.name, err)
		}
		deps[depName] = instance
	}

	instance, err := descriptor.factory(deps)
	if err != nil {
		return nil, fmt.Errorf("factory for service %q: %w", descriptor.name, err)
	}
	r.logger.Debug("Service constructed", "service", descriptor.name, "lifecycle", descriptor.lifecycle, "scope", scopeID)
	return instance, nil
}

// Reset discards every cached singleton and scoped instance. Descriptors
// remain registered; subsequent resolution reconstructs instances from
// their factories.
func (r *ServiceRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, descriptor := range r.descriptors {
		descriptor.mu.Lock()
		if descriptor.factory != nil {
			descriptor.instance = nil
			descriptor.built = false
		}
		descriptor.mu.Unlock()
	}
	r.scopes = make(map[string]map[string]any)
}

// ResetService clears the cached singleton instance for the named service
// under its descriptor lock and purges the service from every scope.
// Pre-built instance registrations are left intact since they have no
// factory to rebuild from.
func (r *ServiceRegistry) ResetService(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	descriptor, ok := r.descriptors[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}

	descriptor.mu.Lock()
	if descriptor.factory != nil {
		descriptor.instance = nil
		descriptor.built = false
	}
	descriptor.mu.Unlock()

	for _, scope := range r.scopes {
		delete(scope, name)
	}
	return nil
}

// ClearScope discards all instances cached for the given scope id.
func (r *ServiceRegistry) ClearScope(scopeID string) {
	if scopeID == "" {
		scopeID = DefaultScopeID
	}
	r.mu.Lock()
	delete(r.scopes, scopeID)
	r.mu.Unlock()
}

// ServiceInfo reports introspection data about a registered service.
type ServiceInfo struct {
	Name         string
	Lifecycle    ServiceLifecycle
	Dependencies []string
	Tags         []string
	HasInstance  bool
	Initializing bool
}

// GetServiceInfo returns introspection data for the named service.
func (r *ServiceRegistry) GetServiceInfo(name string) (ServiceInfo, error) {
	r.mu.RLock()
	descriptor, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return ServiceInfo{}, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}

	descriptor.mu.RLock()
	defer descriptor.mu.RUnlock()
	return ServiceInfo{
		Name:         descriptor.name,
		Lifecycle:    descriptor.lifecycle,
		Dependencies: descriptor.Dependencies(),
		Tags:         descriptor.Tags(),
		HasInstance:  descriptor.built,
		Initializing: descriptor.initializing.Load(),
	}, nil
}

// ListServices returns the sorted names of all registered services.
func (r *ServiceRegistry) ListServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
