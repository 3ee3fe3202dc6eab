package clarion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCloudEvent_RequiredAttributes(t *testing.T) {
	event := NewCloudEvent("com.clarioncrm.clarion.test", "test-source",
		map[string]string{"key": "value"}, map[string]any{"tenant": "acme"})

	assert.NotEmpty(t, event.ID())
	assert.Equal(t, "com.clarioncrm.clarion.test", event.Type())
	assert.Equal(t, "test-source", event.Source())
	assert.False(t, event.Time().IsZero())
	require.NoError(t, event.Validate())
}

func TestObserverRegistry_NotifyAll(t *testing.T) {
	registry := NewObserverRegistry()
	var received []string

	require.NoError(t, registry.RegisterObserver(NewFunctionalObserver("a", func(_ context.Context, event CloudEvent) error {
		received = append(received, "a:"+event.Type())
		return nil
	})))
	require.NoError(t, registry.RegisterObserver(NewFunctionalObserver("b", func(_ context.Context, event CloudEvent) error {
		received = append(received, "b:"+event.Type())
		return nil
	})))

	event := NewCloudEvent("com.clarioncrm.clarion.test", "test", nil, nil)
	require.NoError(t, registry.NotifyObservers(context.Background(), event))
	assert.Equal(t, []string{"a:com.clarioncrm.clarion.test", "b:com.clarioncrm.clarion.test"}, received)
}

func TestObserverRegistry_EventTypeFilter(t *testing.T) {
	registry := NewObserverRegistry()
	var received int
	require.NoError(t, registry.RegisterObserver(NewFunctionalObserver("filtered", func(context.Context, CloudEvent) error {
		received++
		return nil
	}), "com.clarioncrm.clarion.interesting"))

	require.NoError(t, registry.NotifyObservers(context.Background(),
		NewCloudEvent("com.clarioncrm.clarion.interesting", "test", nil, nil)))
	require.NoError(t, registry.NotifyObservers(context.Background(),
		NewCloudEvent("com.clarioncrm.clarion.boring", "test", nil, nil)))

	assert.Equal(t, 1, received)
}

func TestObserverRegistry_ErrorDoesNotBlockOthers(t *testing.T) {
	registry := NewObserverRegistry()
	boom := errors.New("handler failure")
	var reached bool

	require.NoError(t, registry.RegisterObserver(NewFunctionalObserver("failing", func(context.Context, CloudEvent) error {
		return boom
	})))
	require.NoError(t, registry.RegisterObserver(NewFunctionalObserver("ok", func(context.Context, CloudEvent) error {
		reached = true
		return nil
	})))

	err := registry.NotifyObservers(context.Background(), NewCloudEvent("com.clarioncrm.clarion.test", "test", nil, nil))
	require.ErrorIs(t, err, boom)
	assert.True(t, reached)
}

func TestObserverRegistry_Unregister(t *testing.T) {
	registry := NewObserverRegistry()
	var received int
	observer := NewFunctionalObserver("once", func(context.Context, CloudEvent) error {
		received++
		return nil
	})
	require.NoError(t, registry.RegisterObserver(observer))
	require.NoError(t, registry.UnregisterObserver(observer))
	// Unregistering twice is idempotent.
	require.NoError(t, registry.UnregisterObserver(observer))

	require.NoError(t, registry.NotifyObservers(context.Background(), NewCloudEvent("com.clarioncrm.clarion.test", "test", nil, nil)))
	assert.Zero(t, received)
}

func TestEmitEvent_NilSubject(t *testing.T) {
	err := EmitEvent(context.Background(), nil, NewCloudEvent("com.clarioncrm.clarion.test", "test", nil, nil))
	require.ErrorIs(t, err, ErrNoSubjectForEventEmission)
}
