package healthcheck

// Event type constants for health-check observer events.
// Following CloudEvents specification reverse domain notation.
const (
	// Cycle lifecycle events
	EventTypeCheckStarted   = "com.clarioncrm.healthcheck.started"
	EventTypeCheckCompleted = "com.clarioncrm.healthcheck.completed"

	// Failure events
	EventTypeCheckFailed   = "com.clarioncrm.healthcheck.failed"
	EventTypeCheckTimeout  = "com.clarioncrm.healthcheck.timeout"
	EventTypeAlertSent     = "com.clarioncrm.healthcheck.alert.sent"
	EventTypeAlertFailed   = "com.clarioncrm.healthcheck.alert.failed"
	EventTypeStorageFailed = "com.clarioncrm.healthcheck.storage.failed"
)
