package healthcheck

import "time"

// Status is the terminal classification of one health-check cycle.
type Status string

const (
	// StatusSent means the probe was delivered to the messaging API but
	// the matching webhook has not been verified yet.
	StatusSent Status = "sent"

	// StatusSuccess means the inbound webhook for the probe arrived
	// within the timeout window.
	StatusSuccess Status = "success"

	// StatusFailed means the probe could not be sent at all.
	StatusFailed Status = "failed"

	// StatusTimeout means the probe was sent but no matching webhook
	// arrived before the deadline.
	StatusTimeout Status = "timeout"
)

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// Failure reports whether the status represents a failed cycle.
func (s Status) Failure() bool {
	return s == StatusFailed || s == StatusTimeout
}

// Result captures the outcome of a single health-check cycle.
type Result struct {
	Status  Status
	Message string

	// MessageID is the provider id of the outbound probe, empty when the
	// send itself failed.
	MessageID string

	SentAt     time.Time
	ReceivedAt *time.Time

	// ResponseTime is the receipt delay in fractional seconds, set only
	// on success.
	ResponseTime *float64

	ErrorMessage string
}

// Stats summarizes recent health-check outcomes within a time window.
type Stats struct {
	TotalChecks int     `json:"total_checks"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	// AvgResponseTime is the mean response time in seconds across
	// successful checks that recorded one; nil when none did.
	AvgResponseTime *float64 `json:"avg_response_time"`

	// LastCheckAt is the timestamp of the most recent check in the
	// window; nil when the window is empty.
	LastCheckAt *time.Time `json:"last_check_at"`

	WindowHours int `json:"window_hours"`
}
