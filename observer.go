package clarion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience.
type CloudEvent = cloudevents.Event

// Observer receives events emitted by clarion components. Observers should
// handle events quickly to avoid blocking other observers.
type Observer interface {
	// OnEvent is called when an event the observer is interested in occurs.
	OnEvent(ctx context.Context, event CloudEvent) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject maintains a list of observers and notifies them when events
// occur.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications. When
	// eventTypes is empty the observer receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers.
	NotifyObservers(ctx context.Context, event CloudEvent) error
}

// NewCloudEvent creates a CloudEvent with the required attributes set.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) CloudEvent {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID generates a unique identifier for CloudEvents using
// UUIDv7 for time-ordered uniqueness, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// FunctionalObserver wraps a plain function as an Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event CloudEvent) error
}

// NewFunctionalObserver creates an observer that delegates to the provided
// function. Convenience constructor for simple use cases.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event CloudEvent) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event CloudEvent) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// ObserverRegistry is a thread-safe Subject implementation. Emission
// errors from individual observers are collected but do not prevent
// delivery to the remaining observers.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers map[string]observerEntry
}

type observerEntry struct {
	observer   Observer
	eventTypes map[string]struct{} // empty means all events
}

// NewObserverRegistry creates an empty observer registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{observers: make(map[string]observerEntry)}
}

// RegisterObserver implements Subject. Re-registering the same observer id
// replaces its event type filter.
func (s *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	filter := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		filter[eventType] = struct{}{}
	}

	s.mu.Lock()
	s.observers[observer.ObserverID()] = observerEntry{observer: observer, eventTypes: filter}
	s.mu.Unlock()
	return nil
}

// UnregisterObserver implements Subject.
func (s *ObserverRegistry) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	s.mu.Lock()
	delete(s.observers, observer.ObserverID())
	s.mu.Unlock()
	return nil
}

// NotifyObservers implements Subject. Observers are notified synchronously
// in stable id order; the first handler error is returned after all
// observers have been notified.
func (s *ObserverRegistry) NotifyObservers(ctx context.Context, event CloudEvent) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]observerEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, s.observers[id])
	}
	s.mu.RUnlock()

	var firstErr error
	for _, entry := range entries {
		if len(entry.eventTypes) > 0 {
			if _, interested := entry.eventTypes[event.Type()]; !interested {
				continue
			}
		}
		if err := entry.observer.OnEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("observer %q: %w", entry.observer.ObserverID(), err)
		}
	}
	return firstErr
}

// EmitEvent notifies the subject when one is available. A nil subject
// reports ErrNoSubjectForEventEmission, which callers in non-observable
// deployments are expected to ignore.
func EmitEvent(ctx context.Context, subject Subject, event CloudEvent) error {
	if subject == nil {
		return ErrNoSubjectForEventEmission
	}
	return subject.NotifyObservers(ctx, event)
}
