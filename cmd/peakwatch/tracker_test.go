package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/metrics"
	"github.com/HatiCode/peakwatch/pkg/adapters"
	"github.com/HatiCode/peakwatch/pkg/notify"
	"github.com/HatiCode/peakwatch/pkg/records"
	"github.com/HatiCode/peakwatch/pkg/storage"
)

type step struct {
	value int64
	err   error
}

// scriptedSource returns its steps in order, then repeats the last one.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	fetched chan struct{}
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context) (int64, error) {
	s.mu.Lock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	st := s.steps[i]
	s.mu.Unlock()

	if s.fetched != nil {
		defer func() { s.fetched <- struct{}{} }()
	}
	return st.value, st.err
}

// hangingSource blocks until its context ends.
type hangingSource struct{}

func (hangingSource) Name() string { return "hanging" }

func (hangingSource) Fetch(ctx context.Context) (int64, error) {
	<-ctx.Done()
	return 0, fmt.Errorf("%w: %w", adapters.ErrFetch, ctx.Err())
}

type capturingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (c *capturingNotifier) Name() string { return "capture" }

func (c *capturingNotifier) Send(_ context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *capturingNotifier) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

type fixture struct {
	tracker  *Tracker
	store    *records.Store
	backend  *storage.MemoryBackend
	notifier *capturingNotifier
	gateway  *notify.Gateway
	metrics  *metrics.Metrics
	clock    *clock.Mock
}

func newFixture(t *testing.T, source adapters.Source) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	backend := storage.NewMemoryBackend()
	store := records.New(backend, records.WithClock(mock), records.WithLogger(logger))
	store.Initialize(nil)

	n := &capturingNotifier{}
	m := metrics.New(prometheus.NewRegistry(), "player count")
	gateway := notify.NewGateway(n, logger, notify.WithMetricName("player count"))

	tr := NewTracker(source, store, gateway, m, time.Second, logger)
	tr.clock = mock

	return &fixture{
		tracker:  tr,
		store:    store,
		backend:  backend,
		notifier: n,
		gateway:  gateway,
		metrics:  m,
		clock:    mock,
	}
}

func TestTracker_TickScenario(t *testing.T) {
	source := &scriptedSource{steps: []step{{value: 500}, {value: 300}, {value: 500}, {value: 600}}}
	f := newFixture(t, source)
	ctx := context.Background()

	for range 4 {
		if err := f.tracker.Tick(ctx); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		f.clock.Add(time.Minute)
	}
	f.gateway.Wait()

	state := f.store.Snapshot()
	if state.CurrentHigh != 600 {
		t.Errorf("CurrentHigh = %d, want 600", state.CurrentHigh)
	}
	if len(state.History) != 2 || state.History[0].Value != 600 || state.History[1].Value != 500 {
		t.Errorf("History = %+v, want [600 500]", state.History)
	}

	want := []string{"New all-time high player count: 500", "New all-time high player count: 600"}
	got := f.notifier.Messages()
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}

	if v := testutil.ToFloat64(f.metrics.RecordsTotal); v != 2 {
		t.Errorf("records total = %v, want 2", v)
	}
	if v := testutil.ToFloat64(f.metrics.Observations.WithLabelValues("no_change")); v != 2 {
		t.Errorf("no_change observations = %v, want 2", v)
	}
	if v := testutil.ToFloat64(f.metrics.CurrentHigh); v != 600 {
		t.Errorf("current high gauge = %v, want 600", v)
	}
	if f.backend.Saves() != 2 {
		t.Errorf("saves = %d, want 2", f.backend.Saves())
	}
}

func TestTracker_TickErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantIs     error
		wantReason string
	}{
		{
			name:       "fetch failure",
			err:        fmt.Errorf("%w: connection refused", adapters.ErrFetch),
			wantIs:     adapters.ErrFetch,
			wantReason: "fetch_failed",
		},
		{
			name:       "invalid value",
			err:        fmt.Errorf("%w: -1 is negative", records.ErrInvalidObservation),
			wantIs:     records.ErrInvalidObservation,
			wantReason: "invalid_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &scriptedSource{steps: []step{{value: 100}, {err: tt.err}}})
			ctx := context.Background()

			if err := f.tracker.Tick(ctx); err != nil {
				t.Fatalf("first Tick() error = %v", err)
			}
			err := f.tracker.Tick(ctx)
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("Tick() error = %v, want %v", err, tt.wantIs)
			}
			f.gateway.Wait()

			if f.store.CurrentHigh() != 100 {
				t.Errorf("CurrentHigh = %d, want 100 after failed tick", f.store.CurrentHigh())
			}
			if len(f.notifier.Messages()) != 1 {
				t.Errorf("messages = %v, want exactly one", f.notifier.Messages())
			}
			if v := testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("source", tt.wantReason)); v != 1 {
				t.Errorf("errors{source,%s} = %v, want 1", tt.wantReason, v)
			}
		})
	}
}

func TestTracker_PersistFailureRollsBack(t *testing.T) {
	f := newFixture(t, &scriptedSource{steps: []step{{value: 100}, {value: 200}, {value: 200}}})
	ctx := context.Background()

	if err := f.tracker.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	f.backend.FailSaves(errors.New("disk full"))
	err := f.tracker.Tick(ctx)
	if !errors.Is(err, records.ErrPersistence) {
		t.Fatalf("Tick() error = %v, want ErrPersistence", err)
	}
	if f.store.CurrentHigh() != 100 {
		t.Errorf("CurrentHigh = %d, want 100 after failed persist", f.store.CurrentHigh())
	}
	if v := testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("store", "persist_failed")); v != 1 {
		t.Errorf("persist errors = %v, want 1", v)
	}

	f.backend.FailSaves(nil)
	if err := f.tracker.Tick(ctx); err != nil {
		t.Fatalf("Tick() after recovery error = %v", err)
	}
	f.gateway.Wait()

	if f.store.CurrentHigh() != 200 {
		t.Errorf("CurrentHigh = %d, want 200 once storage recovers", f.store.CurrentHigh())
	}
	if got := f.notifier.Messages(); len(got) != 2 {
		t.Errorf("messages = %v, want announcements for 100 and 200 only", got)
	}
}

func TestTracker_FetchTimeout(t *testing.T) {
	f := newFixture(t, hangingSource{})
	f.tracker.fetchTimeout = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.tracker.Tick(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Tick() error = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Tick() did not honor the fetch timeout")
	}
}

func TestTracker_Run(t *testing.T) {
	source := &scriptedSource{
		steps:   []step{{value: 10}, {value: 20}, {value: 15}},
		fetched: make(chan struct{}, 10),
	}
	f := newFixture(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx, time.Minute) }()

	waitFetch := func() {
		t.Helper()
		select {
		case <-source.fetched:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fetch")
		}
	}

	// First tick runs without waiting for the interval.
	waitFetch()

	f.clock.Add(time.Minute)
	waitFetch()

	f.clock.Add(time.Minute)
	waitFetch()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	f.gateway.Wait()

	if f.store.CurrentHigh() != 20 {
		t.Errorf("CurrentHigh = %d, want 20", f.store.CurrentHigh())
	}
	if got := f.notifier.Messages(); len(got) != 2 {
		t.Errorf("messages = %v, want 2", got)
	}
}

func TestTracker_RunSurvivesFailingTicks(t *testing.T) {
	source := &scriptedSource{
		steps: []step{
			{err: fmt.Errorf("%w: 503", adapters.ErrFetch)},
			{value: 42},
		},
		fetched: make(chan struct{}, 10),
	}
	f := newFixture(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx, time.Minute) }()

	<-source.fetched
	f.clock.Add(time.Minute)
	<-source.fetched

	cancel()
	<-done

	if f.store.CurrentHigh() != 42 {
		t.Errorf("CurrentHigh = %d, want 42 after a failed tick", f.store.CurrentHigh())
	}
}
