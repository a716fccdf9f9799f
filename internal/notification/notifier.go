// Package notification delivers bot alerts to external channels (log,
// Telegram, webhooks). The live loop holds a Notifier as an explicit
// collaborator.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trading-backtestv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TraceID string     `json:"trace_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert builds the alert for a live buy or sell signal. Trade signals
// are raised at WARNING so they stand out from routine notices.
func SignalAlert(ev model.SignalEvent) Alert {
	verb := "BUY"
	if ev.Signal == model.SignalSell {
		verb = "SELL"
	}
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("%s signal %s", verb, ev.Symbol),
		Message: fmt.Sprintf("%s %s %s at %.8g (bar %s)", ev.Strategy, ev.Interval, verb, ev.Price, ev.BarTS.UTC().Format("2006-01-02 15:04")),
		TraceID: ev.TraceID,
	}
}

// Info builds a routine notice such as bot start or stop.
func Info(title, message string) Alert {
	return Alert{Level: AlertInfo, Title: title, Message: message}
}

// Critical builds an error notice.
func Critical(title string, err error) Alert {
	return Alert{Level: AlertCritical, Title: title, Message: err.Error()}
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	attrs := []any{"title", alert.Title}
	if alert.TraceID != "" {
		attrs = append(attrs, "trace_id", alert.TraceID)
	}
	n.log.Log(ctx, level, alert.Message, attrs...)
	return nil
}

// Multi fans an alert out to every notifier. All backends are tried; their
// errors are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
