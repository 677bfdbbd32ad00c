package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/metrics"
	"github.com/HatiCode/peakwatch/pkg/adapters"
	"github.com/HatiCode/peakwatch/pkg/notify"
	"github.com/HatiCode/peakwatch/pkg/records"
)

// Tracker drives the poll loop: fetch -> observe -> announce.
type Tracker struct {
	source       adapters.Source
	store        *records.Store
	gateway      *notify.Gateway
	metrics      *metrics.Metrics
	fetchTimeout time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// NewTracker creates a Tracker. gateway and m may be nil.
func NewTracker(
	source adapters.Source,
	store *records.Store,
	gateway *notify.Gateway,
	m *metrics.Metrics,
	fetchTimeout time.Duration,
	logger *slog.Logger,
) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		source:       source,
		store:        store,
		gateway:      gateway,
		metrics:      m,
		fetchTimeout: fetchTimeout,
		clock:        clock.New(),
		logger:       logger,
	}
}

// Run polls at the given interval until ctx is canceled. The first tick runs
// immediately. Ticks never overlap: a tick that would start while the previous
// one is still running is dropped.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	t.logger.Info("starting poll loop", "interval", interval, "source", t.source.Name())

	ticker := t.clock.Ticker(interval)
	defer ticker.Stop()

	t.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("poll loop stopped")
			return ctx.Err()
		case <-ticker.C:
			t.runTick(ctx)
		}
	}
}

func (t *Tracker) runTick(ctx context.Context) {
	err := t.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
	case errors.Is(err, records.ErrInvalidObservation):
		t.logger.Warn("tick skipped", "error", err)
	default:
		t.logger.Error("tick failed", "error", err)
	}
}

// Tick performs one poll cycle.
// Exported for testing purposes.
func (t *Tracker) Tick(ctx context.Context) error {
	start := t.clock.Now()

	value, fetchDuration, err := t.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	res, err := t.store.Observe(ctx, value)
	if err != nil {
		t.recordError("store", "persist_failed")
		return fmt.Errorf("observe: %w", err)
	}

	if t.metrics != nil {
		t.metrics.RecordObservation(res.IsNewRecord, res.State.CurrentHigh)
		t.metrics.MarkTick(t.clock.Now())
	}

	if res.IsNewRecord {
		rec := res.State.History[0]
		t.logger.Info("new all-time high",
			"value", rec.Value,
			"observed_at", rec.ObservedAt,
			"history", len(res.State.History),
		)
		t.gateway.Notify(rec)
	}

	t.logger.Debug("tick complete",
		"value", value,
		"current_high", res.State.CurrentHigh,
		"new_record", res.IsNewRecord,
		"fetch_ms", fetchDuration.Milliseconds(),
		"total_ms", t.clock.Since(start).Milliseconds(),
	)

	return nil
}

// fetch reads one observation, bounded by the fetch timeout.
func (t *Tracker) fetch(ctx context.Context) (int64, time.Duration, error) {
	if t.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.fetchTimeout)
		defer cancel()
	}

	start := t.clock.Now()
	value, err := t.source.Fetch(ctx)
	duration := t.clock.Since(start)
	if t.metrics != nil {
		t.metrics.RecordFetch(duration.Seconds())
	}
	if err != nil {
		if errors.Is(err, records.ErrInvalidObservation) {
			t.recordError("source", "invalid_value")
		} else {
			t.recordError("source", "fetch_failed")
		}
		return 0, duration, err
	}

	t.logger.Debug("fetched observation",
		"source", t.source.Name(),
		"value", value,
		"duration_ms", duration.Milliseconds(),
	)
	return value, duration, nil
}

func (t *Tracker) recordError(component, reason string) {
	if t.metrics != nil {
		t.metrics.RecordError(component, reason)
	}
}
