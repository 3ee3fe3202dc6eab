// Package healthcheck proves end-to-end webhook delivery health. Each
// cycle sends a uniquely tagged probe SMS through the messaging API,
// waits for the matching inbound webhook to appear in the event store,
// alerts by email when the probe is lost, and persists the outcome so
// historical success rates can be reported.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	clarion "github.com/clarioncrm/clarion"
	"github.com/clarioncrm/clarion/eventstore"
	"github.com/clarioncrm/clarion/mailer"
)

const (
	// probePrefix tags outbound probe messages so inbound webhooks can be
	// matched back to a specific cycle.
	probePrefix = "[HEALTH_CHECK]"

	// pollInterval is the fixed delay between event-store lookups while
	// waiting for the inbound webhook.
	pollInterval = 5 * time.Second

	// DefaultTimeout bounds how long a cycle waits for the webhook.
	DefaultTimeout = 120 * time.Second

	// statsLimit caps how many persisted outcomes a stats query reads.
	statsLimit = 100

	timeoutErrorMessage = "webhook event not received before timeout"

	eventSource = "healthcheck-service"
)

// Messenger sends the outbound probe. Satisfied by messaging.Client.
type Messenger interface {
	SendMessage(ctx context.Context, to, text string) (string, error)
}

// EventStore is the slice of the event store this service reads and
// writes. Satisfied by eventstore.Store.
type EventStore interface {
	Create(ctx context.Context, event *eventstore.Event) error
	FindInboundMessage(ctx context.Context, text string, since time.Time) (*eventstore.Event, error)
	ListByTypePrefix(ctx context.Context, prefix string, since time.Time, limit int) ([]*eventstore.Event, error)
}

// MetricsRecorder receives per-cycle measurements. Optional.
type MetricsRecorder interface {
	ObserveCheck(status string)
	ObserveResponseTime(seconds float64)
}

// Config holds the health-check service configuration.
type Config struct {
	// TestNumber is the phone number probes are sent to. The webhook
	// pipeline must route replies from this number back into the event
	// store.
	TestNumber string `yaml:"test_number" toml:"test_number" env:"HEALTH_CHECK_TEST_NUMBER"`

	// Timeout bounds how long one cycle waits for the inbound webhook.
	Timeout time.Duration `yaml:"timeout" toml:"timeout" env:"HEALTH_CHECK_TIMEOUT" default:"120s"`

	// AlertRecipients receive failure emails.
	AlertRecipients []string `yaml:"alert_recipients" toml:"alert_recipients" env:"HEALTH_CHECK_ALERT_RECIPIENTS"`
}

// Service runs webhook health-check cycles.
type Service struct {
	cfg       Config
	messenger Messenger
	store     EventStore
	alerts    mailer.Sender
	metrics   MetricsRecorder
	subject   clarion.Subject
	logger    clarion.Logger
}

// ServiceOption configures optional collaborators on a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for health-check operations.
func WithLogger(logger clarion.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAlertSender wires the email sender used for failure alerts.
// Without one, failures are logged but no email is attempted.
func WithAlertSender(sender mailer.Sender) ServiceOption {
	return func(s *Service) { s.alerts = sender }
}

// WithMetrics wires a recorder for per-cycle measurements.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithSubject wires an event subject so cycles emit CloudEvents.
func WithSubject(subject clarion.Subject) ServiceOption {
	return func(s *Service) { s.subject = subject }
}

// NewService creates a health-check service around the given messenger
// and event store.
func NewService(cfg Config, messenger Messenger, store EventStore, opts ...ServiceOption) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &Service{
		cfg:       cfg,
		messenger: messenger,
		store:     store,
		logger:    clarion.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendHealthCheck sends a uniquely tagged probe message. It never
// returns an error; a failed send is reported as a failed Result so the
// calling task keeps running.
func (s *Service) SendHealthCheck(ctx context.Context) Result {
	sentAt := time.Now().UTC()
	message := fmt.Sprintf("%s Test at %s-%s", probePrefix, sentAt.Format(time.RFC3339), uuid.NewString()[:8])

	result := Result{
		Message: message,
		SentAt:  sentAt,
	}

	messageID, err := s.messenger.SendMessage(ctx, s.cfg.TestNumber, message)
	if err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
		s.logger.Error("health check probe send failed", "error", err, "to", s.cfg.TestNumber)
		return result
	}

	result.Status = StatusSent
	result.MessageID = messageID
	s.logger.Info("health check probe sent", "message_id", messageID, "to", s.cfg.TestNumber)
	return result
}

// VerifyWebhookReceipt polls the event store for an inbound message
// whose text exactly matches the probe, every five seconds until found
// or until timeout elapses. A non-positive timeout falls back to the
// configured one.
func (s *Service) VerifyWebhookReceipt(ctx context.Context, checkMessage string, sentAt time.Time, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	deadline := time.Now().Add(timeout)

	result := Result{
		Message: checkMessage,
		SentAt:  sentAt,
	}

	for {
		event, err := s.store.FindInboundMessage(ctx, checkMessage, sentAt)
		if err == nil {
			receivedAt := event.CreatedAt
			responseTime := receivedAt.Sub(sentAt).Seconds()
			result.Status = StatusSuccess
			result.ReceivedAt = &receivedAt
			result.ResponseTime = &responseTime
			s.logger.Info("health check webhook received",
				"response_time", responseTime, "event_id", event.EventID,
				"from", event.PayloadString("from"))
			return result
		}
		if !errors.Is(err, eventstore.ErrEventNotFound) {
			// Lookup errors are transient from this loop's point of
			// view; keep polling until the deadline decides.
			s.logger.Warn("health check event lookup failed", "error", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			result.Status = StatusTimeout
			result.ErrorMessage = timeoutErrorMessage
			s.logger.Warn("health check timed out", "timeout", timeout, "message", checkMessage)
			return result
		}

		wait := pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			result.Status = StatusTimeout
			result.ErrorMessage = ctx.Err().Error()
			return result
		case <-time.After(wait):
		}
	}
}

// RunHealthCheck performs one full cycle: send the probe, verify the
// webhook when the send succeeded, alert on failure, and persist the
// outcome exactly once.
func (s *Service) RunHealthCheck(ctx context.Context) Result {
	s.emit(ctx, EventTypeCheckStarted, map[string]any{"test_number": s.cfg.TestNumber})

	result := s.SendHealthCheck(ctx)
	if result.Status == StatusSent {
		verified := s.VerifyWebhookReceipt(ctx, result.Message, result.SentAt, 0)
		verified.MessageID = result.MessageID
		result = verified
	}

	if result.Status.Failure() {
		s.sendAlertEmail(ctx, result)
	}
	s.storeResult(ctx, result)

	if s.metrics != nil {
		s.metrics.ObserveCheck(result.Status.String())
		if result.ResponseTime != nil {
			s.metrics.ObserveResponseTime(*result.ResponseTime)
		}
	}
	s.emit(ctx, completionEventType(result.Status), map[string]any{
		"status":     result.Status.String(),
		"message_id": result.MessageID,
		"error":      result.ErrorMessage,
	})

	return result
}

// Status reports aggregate outcomes over the last hours hours, newest
// first, reading at most 100 persisted events.
func (s *Service) Status(ctx context.Context, hours int) (*Stats, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	events, err := s.store.ListByTypePrefix(ctx, eventstore.HealthCheckEventPrefix, since, statsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing health check events: %w", err)
	}

	stats := &Stats{
		TotalChecks: len(events),
		WindowHours: hours,
	}
	var responseTotal float64
	var responseCount int
	for _, event := range events {
		if event.EventType == eventstore.HealthCheckEventPrefix+StatusSuccess.String() {
			stats.Successful++
			if rt, ok := event.PayloadFloat("response_time"); ok {
				responseTotal += rt
				responseCount++
			}
		} else {
			stats.Failed++
		}
	}
	if stats.TotalChecks > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.TotalChecks) * 100
		// Events arrive newest first.
		last := events[0].CreatedAt
		stats.LastCheckAt = &last
	}
	if responseCount > 0 {
		avg := responseTotal / float64(responseCount)
		stats.AvgResponseTime = &avg
	}
	return stats, nil
}

// sendAlertEmail notifies operators of a failed cycle. It only logs
// when alerting is unconfigured or the send fails; a broken alert path
// must not break the check itself.
func (s *Service) sendAlertEmail(ctx context.Context, result Result) {
	if s.alerts == nil || !s.alerts.IsConfigured() {
		s.logger.Warn("health check failed but alert email is not configured",
			"status", result.Status.String())
		return
	}

	subject := "Health Check Alert: Health Check Failed"
	if result.Status == StatusTimeout {
		subject = "Health Check Alert: Webhook Not Received"
	}

	body := fmt.Sprintf("A webhook health check did not complete successfully.\n\n"+
		"Status: %s\nMessage ID: %s\nSent at: %s\n",
		result.Status, result.MessageID, result.SentAt.Format(time.RFC3339))
	if result.ReceivedAt != nil {
		body += fmt.Sprintf("Received at: %s\n", result.ReceivedAt.Format(time.RFC3339))
	}
	if result.ResponseTime != nil {
		body += fmt.Sprintf("Response time: %.2fs\n", *result.ResponseTime)
	}
	if result.ErrorMessage != "" {
		body += fmt.Sprintf("Error: %s\n", result.ErrorMessage)
	}

	err := s.alerts.Send(ctx, mailer.Message{
		Subject:  subject,
		To:       s.cfg.AlertRecipients,
		TextBody: body,
	})
	if err != nil {
		s.logger.Error("health check alert email failed", "error", err)
		s.emit(ctx, EventTypeAlertFailed, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info("health check alert email sent", "subject", subject)
	s.emit(ctx, EventTypeAlertSent, map[string]any{"subject": subject})
}

// storeResult persists the cycle outcome as one event. Storage failures
// are logged and swallowed so the periodic task never crashes on a
// write error.
func (s *Service) storeResult(ctx context.Context, result Result) {
	payload := map[string]any{
		"message": result.Message,
		"sent_at": result.SentAt.Format(time.RFC3339),
	}
	if result.MessageID != "" {
		payload["message_id"] = result.MessageID
	}
	if result.ReceivedAt != nil {
		payload["received_at"] = result.ReceivedAt.Format(time.RFC3339)
	}
	if result.ResponseTime != nil {
		payload["response_time"] = *result.ResponseTime
	}
	if result.ErrorMessage != "" {
		payload["error_message"] = result.ErrorMessage
	}

	event := &eventstore.Event{
		EventID:   uuid.NewString(),
		EventType: eventstore.HealthCheckEventPrefix + result.Status.String(),
		Payload:   payload,
	}
	if err := s.store.Create(ctx, event); err != nil {
		s.logger.Error("storing health check result failed",
			"error", err, "status", result.Status.String())
		s.emit(ctx, EventTypeStorageFailed, map[string]any{"error": err.Error()})
	}
}

func (s *Service) emit(ctx context.Context, eventType string, data map[string]any) {
	if s.subject == nil {
		return
	}
	event := clarion.NewCloudEvent(eventType, eventSource, data, nil)
	if err := clarion.EmitEvent(ctx, s.subject, event); err != nil {
		s.logger.Debug("health check event emission failed", "type", eventType, "error", err)
	}
}

func completionEventType(status Status) string {
	switch status {
	case StatusFailed:
		return EventTypeCheckFailed
	case StatusTimeout:
		return EventTypeCheckTimeout
	default:
		return EventTypeCheckCompleted
	}
}
