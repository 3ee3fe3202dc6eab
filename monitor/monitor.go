// Package monitor schedules recurring background tasks, primarily the
// webhook health-check cycle. Each run gets its own id and timeout, and
// a failing run is re-invoked with exponential backoff before the
// monitor gives up until the next scheduled tick.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	clarion "github.com/clarioncrm/clarion"
)

// Static errors for the monitor package
var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrNotStarted     = errors.New("monitor not started")
	ErrNilTask        = errors.New("monitor task is nil")
)

// Event type constants for monitor observer events.
const (
	EventTypeRunStarted   = "com.clarioncrm.monitor.run.started"
	EventTypeRunCompleted = "com.clarioncrm.monitor.run.completed"
	EventTypeRunFailed    = "com.clarioncrm.monitor.run.failed"
)

const eventSource = "monitor"

// historyLimit caps how many run records are retained in memory.
const historyLimit = 20

// Task is one unit of scheduled work. A non-nil error triggers the
// retry policy.
type Task func(ctx context.Context) error

// Config holds the monitor configuration.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string `yaml:"schedule" toml:"schedule" env:"MONITOR_SCHEDULE" default:"*/30 * * * *"`

	// RunTimeout bounds a single task invocation, including all retries
	// of that invocation's attempt.
	RunTimeout time.Duration `yaml:"run_timeout" toml:"run_timeout" env:"MONITOR_RUN_TIMEOUT" default:"5m"`

	// MaxRetries is how many times a failed attempt is re-invoked.
	MaxRetries int `yaml:"max_retries" toml:"max_retries" env:"MONITOR_MAX_RETRIES" default:"3"`

	// InitialBackoff is the delay before the first retry; it doubles per
	// retry up to MaxBackoff.
	InitialBackoff time.Duration `yaml:"initial_backoff" toml:"initial_backoff" env:"MONITOR_INITIAL_BACKOFF" default:"2s"`

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff" toml:"max_backoff" env:"MONITOR_MAX_BACKOFF" default:"1m"`
}

func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = "*/30 * * * *"
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
}

// RunRecord describes one completed run, including its retries.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	Err        error
}

// Monitor owns a cron scheduler and executes the task on its schedule.
type Monitor struct {
	cfg     Config
	task    Task
	logger  clarion.Logger
	subject clarion.Subject

	mu        sync.Mutex
	scheduler *cron.Cron
	entryID   cron.EntryID
	cancel    context.CancelFunc
	started   bool
	history   []RunRecord
}

// Option configures optional collaborators on a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for scheduling and run outcomes.
func WithLogger(logger clarion.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSubject wires an event subject so runs emit CloudEvents.
func WithSubject(subject clarion.Subject) Option {
	return func(m *Monitor) { m.subject = subject }
}

// New creates a monitor for the given task.
func New(cfg Config, task Task, opts ...Option) (*Monitor, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	cfg.applyDefaults()
	m := &Monitor{
		cfg:    cfg,
		task:   task,
		logger: clarion.NoopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start schedules the task and starts the cron loop.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := cron.New()
	entryID, err := scheduler.AddFunc(m.cfg.Schedule, func() { m.execute(ctx) })
	if err != nil {
		cancel()
		return fmt.Errorf("scheduling monitor task %q: %w", m.cfg.Schedule, err)
	}

	m.scheduler = scheduler
	m.entryID = entryID
	m.cancel = cancel
	m.started = true
	scheduler.Start()

	m.logger.Info("monitor started", "schedule", m.cfg.Schedule)
	return nil
}

// Stop halts the cron loop and cancels any in-flight run. It waits for
// a running task to observe cancellation before returning.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	scheduler := m.scheduler
	cancel := m.cancel
	m.started = false
	m.mu.Unlock()

	// Wait without holding the lock: a finishing run records its
	// outcome under m.mu before the stop context becomes done.
	stopCtx := scheduler.Stop()
	cancel()
	<-stopCtx.Done()

	m.logger.Info("monitor stopped")
	return nil
}

// Started reports whether the monitor is currently scheduled.
func (m *Monitor) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// NextRun returns the next scheduled execution time, or the zero time
// when the monitor is stopped.
func (m *Monitor) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return time.Time{}
	}
	return m.scheduler.Entry(m.entryID).Next
}

// RunNow executes one run immediately, outside the cron schedule, with
// the same timeout and retry policy. Used at startup and in tests.
func (m *Monitor) RunNow(ctx context.Context) RunRecord {
	return m.execute(ctx)
}

// History returns a copy of the retained run records, most recent last.
func (m *Monitor) History() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]RunRecord, len(m.history))
	copy(history, m.history)
	return history
}

func (m *Monitor) execute(ctx context.Context) RunRecord {
	record := RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.RunTimeout)
	defer cancel()

	m.logger.Info("monitor run started", "run_id", record.RunID)
	m.emit(runCtx, EventTypeRunStarted, map[string]any{"run_id": record.RunID})

	var err error
	backoff := m.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		record.Attempts = attempt
		err = m.attempt(runCtx)
		if err == nil {
			break
		}
		m.logger.Warn("monitor run attempt failed",
			"run_id", record.RunID, "attempt", attempt, "error", err)

		if attempt > m.cfg.MaxRetries || runCtx.Err() != nil {
			break
		}
		select {
		case <-runCtx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > m.cfg.MaxBackoff {
			backoff = m.cfg.MaxBackoff
		}
	}

	record.FinishedAt = time.Now().UTC()
	record.Err = err

	if err != nil {
		m.logger.Error("monitor run failed",
			"run_id", record.RunID, "attempts", record.Attempts, "error", err)
		m.emit(runCtx, EventTypeRunFailed, map[string]any{
			"run_id": record.RunID, "attempts": record.Attempts, "error": err.Error(),
		})
	} else {
		m.logger.Info("monitor run completed",
			"run_id", record.RunID, "attempts", record.Attempts)
		m.emit(runCtx, EventTypeRunCompleted, map[string]any{
			"run_id": record.RunID, "attempts": record.Attempts,
		})
	}

	m.record(record)
	return record
}

// attempt invokes the task once, converting a panic into an error so a
// misbehaving task cannot kill the scheduler goroutine.
func (m *Monitor) attempt(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return m.task(ctx)
}

func (m *Monitor) record(record RunRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, record)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *Monitor) emit(ctx context.Context, eventType string, data map[string]any) {
	if m.subject == nil {
		return
	}
	event := clarion.NewCloudEvent(eventType, eventSource, data, nil)
	if err := clarion.EmitEvent(ctx, m.subject, event); err != nil {
		m.logger.Debug("monitor event emission failed", "type", eventType, "error", err)
	}
}
