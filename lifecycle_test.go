package clarion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceLifecycle_Validity(t *testing.T) {
	assert.True(t, LifecycleSingleton.IsValid())
	assert.True(t, LifecycleTransient.IsValid())
	assert.True(t, LifecycleScoped.IsValid())
	assert.False(t, ServiceLifecycle("pooled").IsValid())
}

func TestServiceLifecycle_Cacheability(t *testing.T) {
	assert.True(t, LifecycleSingleton.IsCacheable())
	assert.True(t, LifecycleScoped.IsCacheable())
	assert.False(t, LifecycleTransient.IsCacheable())
}

func TestParseServiceLifecycle(t *testing.T) {
	lifecycle, err := ParseServiceLifecycle("transient")
	require.NoError(t, err)
	assert.Equal(t, LifecycleTransient, lifecycle)

	_, err = ParseServiceLifecycle("pooled")
	require.ErrorIs(t, err, ErrInvalidServiceLifecycle)
}

func TestDefaultServiceLifecycle(t *testing.T) {
	assert.Equal(t, LifecycleSingleton, DefaultServiceLifecycle())
}
