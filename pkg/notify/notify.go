// Package notify announces new records on external channels.
//
// A Notifier delivers one message. The Gateway sits between the tracker loop
// and the notifiers: it formats the announcement, sends it in the background
// with a bounded timeout and swallows every failure, so a broken channel can
// never slow the loop down or touch the record state. Delivery is at most
// once; there is no retry and no queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// ErrNotification wraps delivery failures.
var ErrNotification = errors.New("notification failed")

// Notifier sends a message to one external channel.
type Notifier interface {
	Send(ctx context.Context, message string) error
	Name() string
}

// Recorder receives the outcome of each delivery. Implemented by the service
// metrics.
type Recorder interface {
	RecordNotification(channel string, err error)
}

// Gateway turns new-record events into notifications.
type Gateway struct {
	notifier Notifier
	metric   string
	minValue int64
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger

	wg sync.WaitGroup
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMetricName sets the name used in announcements, e.g. "player count".
func WithMetricName(name string) GatewayOption {
	return func(g *Gateway) { g.metric = name }
}

// WithMinValue suppresses announcements for records below v.
func WithMinValue(v int64) GatewayOption {
	return func(g *Gateway) { g.minValue = v }
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRecorder reports delivery outcomes to r.
func WithRecorder(r Recorder) GatewayOption {
	return func(g *Gateway) { g.recorder = r }
}

// NewGateway creates a Gateway that delivers through n.
func NewGateway(n Notifier, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		notifier: n,
		metric:   "value",
		timeout:  10 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Message formats the announcement for rec.
func (g *Gateway) Message(rec records.Record) string {
	return fmt.Sprintf("New all-time high %s: %d", g.metric, rec.Value)
}

// Notify announces rec in the background. It returns immediately.
func (g *Gateway) Notify(rec records.Record) {
	if g == nil || g.notifier == nil {
		return
	}
	if rec.Value < g.minValue {
		g.logger.Debug("record below notification threshold",
			"value", rec.Value,
			"threshold", g.minValue,
		)
		return
	}

	msg := g.Message(rec)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.deliver(msg, rec.Value)
	}()
}

func (g *Gateway) deliver(msg string, value int64) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("notifier panicked", "notifier", g.notifier.Name(), "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	start := time.Now()
	err := g.notifier.Send(ctx, msg)
	if g.recorder != nil {
		g.recorder.RecordNotification(g.notifier.Name(), err)
	}
	if err != nil {
		g.logger.Warn("notification not delivered",
			"notifier", g.notifier.Name(),
			"value", value,
			"error", err,
		)
		return
	}
	g.logger.Info("notification sent",
		"notifier", g.notifier.Name(),
		"value", value,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Wait blocks until in-flight deliveries finish.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Multi fans a message out to several notifiers. Every notifier is tried;
// failures are combined.
type Multi []Notifier

func (m Multi) Name() string {
	if len(m) == 1 {
		return m[0].Name()
	}
	return "multi"
}

func (m Multi) Send(ctx context.Context, message string) error {
	var err error
	for _, n := range m {
		if sendErr := n.Send(ctx, message); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", n.Name(), sendErr))
		}
	}
	return err
}

// LogNotifier writes announcements to the log. Useful as a default channel
// and in development.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Send(_ context.Context, message string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(message, "channel", "log")
	return nil
}
