package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// Severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-facing notification
type Alert struct {
	Source   string            `json:"source"`
	Severity Severity          `json:"severity"`
	Title    string            `json:"title"`
	Detail   string            `json:"detail,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
	RaisedAt time.Time         `json:"raised_at"`
}

// Alerter delivers alerts
type Alerter interface {
	Notify(ctx context.Context, a Alert) error
}

// LogAlerter writes alerts to the structured log
type LogAlerter struct {
	logger *logger.Logger
}

// NewLogAlerter creates an alerter backed by the logger
func NewLogAlerter(log *logger.Logger) *LogAlerter {
	return &LogAlerter{logger: log}
}

// Notify implements Alerter
func (l *LogAlerter) Notify(ctx context.Context, a Alert) error {
	args := []any{"source", a.Source, "title", a.Title, "detail", a.Detail}
	for k, v := range a.Labels {
		args = append(args, k, v)
	}

	switch a.Severity {
	case SeverityCritical:
		l.logger.Critical("alert raised", args...)
	case SeverityWarning:
		l.logger.Log(ctx, slog.LevelWarn, "alert raised", args...)
	default:
		l.logger.Log(ctx, slog.LevelInfo, "alert raised", args...)
	}
	return nil
}

// Throttled limits non-critical alerts per minute. Critical alerts always pass.
type Throttled struct {
	next    Alerter
	limiter *rate.Limiter

	mu      sync.Mutex
	dropped int
}

// NewThrottled wraps next with a per-minute budget
func NewThrottled(next Alerter, perMinute int) *Throttled {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// Notify implements Alerter
func (t *Throttled) Notify(ctx context.Context, a Alert) error {
	if a.Severity != SeverityCritical && !t.limiter.Allow() {
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		return nil
	}
	return t.next.Notify(ctx, a)
}

// Dropped returns how many alerts were suppressed
func (t *Throttled) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Multi fans an alert out to every alerter and joins their errors
type Multi []Alerter

// Notify implements Alerter
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, al := range m {
		if err := al.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
