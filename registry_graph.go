package clarion

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyGraph returns a pure data dump of the declared dependency
// graph, mapping each registered service name to its declared dependency
// names. Nothing is instantiated.
func (r *ServiceRegistry) DependencyGraph() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	graph := make(map[string][]string, len(r.descriptors))
	for name, descriptor := range r.descriptors {
		graph[name] = descriptor.Dependencies()
	}
	return graph
}

// ValidateDependencies checks that every declared dependency of every
// registered service is itself registered, returning one error per
// (service, missing dependency) pair. Nothing is instantiated. An empty
// result means the graph is fully resolvable by name.
func (r *ServiceRegistry) ValidateDependencies() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []error
	for _, name := range names {
		for _, depName := range r.descriptors[name].dependencies {
			if _, ok := r.descriptors[depName]; !ok {
				problems = append(problems, fmt.Errorf("%w: %q requires %q", ErrDependencyMissing, name, depName))
			}
		}
	}
	return problems
}

// InitializationOrder computes a topological ordering of all registered
// services such that every service appears after its declared
// dependencies. The walk is a depth-first sort computed without
// constructing anything; a cycle fails with ErrCircularDependency naming
// the full cycle. Dependencies on unregistered names are skipped here and
// reported by ValidateDependencies instead.
func (r *ServiceRegistry) InitializationOrder() ([]string, error) {
	graph := r.DependencyGraph()

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(graph))
	order := make([]string, 0, len(graph))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		for i, inProgress := range path {
			if inProgress == name {
				cycle := append(append([]string{}, path[i:]...), name)
				return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, " -> "))
			}
		}
		if visited[name] {
			return nil
		}
		path = append(path, name)
		for _, depName := range graph[name] {
			if _, registered := graph[depName]; !registered {
				continue
			}
			if err := visit(depName); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Warmup eagerly resolves the given service names, or every registered
// singleton when no names are supplied. Services are resolved in
// initialization order so dependencies warm up before their dependents.
func (r *ServiceRegistry) Warmup(names ...string) error {
	target := make(map[string]bool, len(names))
	if len(names) > 0 {
		for _, name := range names {
			target[name] = true
		}
	} else {
		r.mu.RLock()
		for name, descriptor := range r.descriptors {
			if descriptor.lifecycle == LifecycleSingleton {
				target[name] = true
			}
		}
		r.mu.RUnlock()
	}

	order, err := r.InitializationOrder()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWarmupFailed, err)
	}

	for _, name := range order {
		if !target[name] {
			continue
		}
		if _, err := r.Get(name); err != nil {
			return fmt.Errorf("%w: service %q: %w", ErrWarmupFailed, name, err)
		}
		delete(target, name)
	}

	// Explicitly requested names that never appeared in the computed order
	// are unregistered.
	if len(target) > 0 {
		missing := make([]string, 0, len(target))
		for name := range target {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return fmt.Errorf("%w: %w: %s", ErrWarmupFailed, ErrServiceNotFound, strings.Join(missing, ", "))
	}
	return nil
}
