package healthcheck

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarioncrm/clarion/eventstore"
)

// Exercises a full cycle against the real SQLite-backed store: the
// inbound webhook row is inserted mid-verification, the way the webhook
// handler would record it.
func TestRunHealthCheckAgainstSQLiteStore(t *testing.T) {
	store, err := eventstore.New(eventstore.Config{
		DSN: filepath.Join(t.TempDir(), "events.db"),
	})
	require.NoError(t, err)
	defer store.Close()

	messenger := &fakeMessenger{messageID: "MSG900"}
	svc := NewService(Config{Timeout: 2 * time.Second}, messenger, store)

	go func() {
		// Give SendHealthCheck time to run so the probe text exists.
		time.Sleep(200 * time.Millisecond)
		_ = store.Create(context.Background(), &eventstore.Event{
			EventID:   "EV900",
			EventType: eventstore.EventTypeMessageReceived,
			Payload:   map[string]any{"text": messenger.probeText(), "from": "+15550001111"},
		})
	}()

	result := svc.RunHealthCheck(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.ResponseTime)
	assert.Greater(t, *result.ResponseTime, 0.0)

	stats, err := svc.Status(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChecks)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func (m *fakeMessenger) probeText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText
}
