package records

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Persister writes a state to durable storage. Save must be atomic: after a
// failed or interrupted Save the previously saved state is still readable.
type Persister interface {
	Save(ctx context.Context, state State) error
}

// Reader is the read-only view of a Store handed to presentation code.
type Reader interface {
	CurrentHigh() int64
	History() []Record
	Snapshot() State
}

// Result is the outcome of a single Observe call.
type Result struct {
	IsNewRecord bool
	State       State
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets how many records History keeps. Values below 1 are ignored.
func WithCapacity(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.capacity = k
		}
	}
}

// WithClock sets the clock used to timestamp records.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPersistTimeout bounds each Save call. Zero disables the bound.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) { s.persistTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the single source of truth for State.
//
// Observe calls are serialized by writeMu, which is held across the persist
// call. The published state is immutable and swapped atomically, so Snapshot
// never blocks on an in-flight Observe.
type Store struct {
	persister      Persister
	capacity       int
	clock          clock.Clock
	persistTimeout time.Duration
	logger         *slog.Logger

	writeMu     sync.Mutex
	state       atomic.Pointer[State]
	initialized atomic.Bool
}

// New creates a Store holding the zero state. Call Initialize (usually via
// Bootstrap) before the first Observe.
func New(persister Persister, opts ...Option) *Store {
	s := &Store{
		persister:      persister,
		capacity:       DefaultCapacity,
		clock:          clock.New(),
		persistTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(&State{})
	return s
}

// Capacity returns the history bound.
func (s *Store) Capacity() int { return s.capacity }

// Initialize seeds the store from a persisted snapshot. A nil or invalid
// snapshot is replaced wholesale by the zero state; the second return value
// reports whether that happened. A valid history longer than the capacity is
// truncated to the newest entries.
func (s *Store) Initialize(persisted *State) (State, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := State{}
	reset := true
	if persisted != nil {
		if err := persisted.Validate(); err != nil {
			s.logger.Warn("discarding invalid persisted state", "error", err)
		} else {
			next = persisted.Clone()
			if len(next.History) > s.capacity {
				next.History = next.History[:s.capacity]
			}
			reset = false
		}
	}

	s.state.Store(&next)
	s.initialized.Store(true)
	return next.Clone(), reset
}

// Initialized reports whether Initialize has run.
func (s *Store) Initialized() bool { return s.initialized.Load() }

// Observe feeds one observation into the store. A value strictly greater than
// the current high becomes a new record: it is prepended to History, the
// history is trimmed to capacity, and the next state is persisted before it
// becomes visible. If persisting fails the error wraps ErrPersistence and the
// state is unchanged.
func (s *Store) Observe(ctx context.Context, value int64) (Result, error) {
	if value < 0 {
		return Result{}, fmt.Errorf("%w: %d is negative", ErrInvalidObservation, value)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	if value <= cur.CurrentHigh {
		return Result{IsNewRecord: false, State: cur.Clone()}, nil
	}

	next := s.advance(cur, Record{Value: value, ObservedAt: s.clock.Now().UTC()})

	if err := s.persist(ctx, next); err != nil {
		s.logger.Error("failed to persist new record",
			"value", value,
			"previous_high", cur.CurrentHigh,
			"error", err,
		)
		return Result{IsNewRecord: false, State: cur.Clone()}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.state.Store(next)
	s.logger.Debug("new record", "value", value, "previous_high", cur.CurrentHigh)
	return Result{IsNewRecord: true, State: next.Clone()}, nil
}

// advance builds the state that follows cur once rec is recorded.
func (s *Store) advance(cur *State, rec Record) *State {
	n := len(cur.History) + 1
	if n > s.capacity {
		n = s.capacity
	}
	history := make([]Record, 0, n)
	history = append(history, rec)
	for _, r := range cur.History {
		if len(history) == n {
			break
		}
		history = append(history, r)
	}
	return &State{CurrentHigh: rec.Value, History: history}
}

func (s *Store) persist(ctx context.Context, next *State) error {
	if s.persister == nil {
		return nil
	}
	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
	}
	return s.persister.Save(ctx, next.Clone())
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() State {
	return s.state.Load().Clone()
}

// CurrentHigh returns the highest value observed so far.
func (s *Store) CurrentHigh() int64 {
	return s.state.Load().CurrentHigh
}

// History returns a copy of the record history, newest first.
func (s *Store) History() []Record {
	return s.state.Load().Clone().History
}
