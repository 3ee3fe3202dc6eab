package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Schedule:       "* * * * *",
		RunTimeout:     time.Second,
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}
}

func TestNewRequiresTask(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNilTask)
}

func TestRunNowSuccessSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	m, err := New(testConfig(), func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	record := m.RunNow(context.Background())

	assert.NoError(t, record.Err)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotEmpty(t, record.RunID)
	assert.False(t, record.FinishedAt.Before(record.StartedAt))
}

func TestRunNowRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	m, err := New(testConfig(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)

	record := m.RunNow(context.Background())

	assert.NoError(t, record.Err)
	assert.Equal(t, 3, record.Attempts)
}

func TestRunNowExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	m, err := New(testConfig(), func(context.Context) error {
		calls.Add(1)
		return errors.New("always down")
	})
	require.NoError(t, err)

	record := m.RunNow(context.Background())

	require.Error(t, record.Err)
	assert.Contains(t, record.Err.Error(), "always down")
	// Initial attempt plus MaxRetries re-invocations.
	assert.Equal(t, 3, record.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunNowRecoversPanic(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	m, err := New(cfg, func(context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	record := m.RunNow(context.Background())

	require.Error(t, record.Err)
	assert.Contains(t, record.Err.Error(), "task panicked")
	assert.Contains(t, record.Err.Error(), "boom")
}

func TestRunNowStopsRetryingOnTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeout = 30 * time.Millisecond
	cfg.MaxRetries = 100
	var calls atomic.Int32
	m, err := New(cfg, func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	start := time.Now()
	record := m.RunNow(context.Background())

	require.Error(t, record.Err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartStopLifecycle(t *testing.T) {
	m, err := New(testConfig(), func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.False(t, m.Started())
	assert.True(t, m.NextRun().IsZero())

	require.NoError(t, m.Start())
	assert.True(t, m.Started())
	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)
	assert.False(t, m.NextRun().IsZero())

	require.NoError(t, m.Stop())
	assert.False(t, m.Started())
	assert.ErrorIs(t, m.Stop(), ErrNotStarted)
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = "@every 20ms"
	cfg.MaxRetries = 0
	cfg.RunTimeout = time.Minute

	running := make(chan struct{})
	var once sync.Once
	m, err := New(cfg, func(ctx context.Context) error {
		once.Do(func() { close(running) })
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	require.NoError(t, m.Start())
	select {
	case <-running:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return while a run was in flight")
	}
	assert.False(t, m.Started())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = "not a schedule"
	m, err := New(cfg, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.Error(t, m.Start())
	assert.False(t, m.Started())
}

func TestHistoryRetainsRecentRuns(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	var calls atomic.Int32
	m, err := New(cfg, func(context.Context) error {
		if calls.Add(1)%2 == 0 {
			return errors.New("every other run fails")
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < historyLimit+5; i++ {
		m.RunNow(context.Background())
	}

	history := m.History()
	require.Len(t, history, historyLimit)
	// Records are ordered oldest to newest.
	assert.True(t, history[0].StartedAt.Before(history[len(history)-1].StartedAt) ||
		history[0].StartedAt.Equal(history[len(history)-1].StartedAt))
}
