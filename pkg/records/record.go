// Package records owns the all-time-high state of a single tracked metric.
//
// A Store holds the current high and a short, most-recent-first history of
// record-setting observations. It is the only component allowed to mutate
// that state: observations go through Store.Observe, which decides whether a
// value is a new record, persists the next state and only then publishes it.
// Readers (the HTTP layer, the CLI) see immutable snapshots through the
// Reader interface and never wait on a writer.
package records

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultCapacity is the number of records kept in History when no capacity
// is configured.
const DefaultCapacity = 5

// Record is one observation that set a new all-time high.
type Record struct {
	Value      int64
	ObservedAt time.Time
}

// State is the durable aggregate: the highest value ever observed and the
// records that led to it, newest first.
type State struct {
	CurrentHigh int64
	History     []Record
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{CurrentHigh: s.CurrentHigh}
	if len(s.History) > 0 {
		out.History = make([]Record, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// Validate reports whether s satisfies the state invariants: a non-negative
// high, history values strictly decreasing from the head, and a head equal to
// the high whenever history is non-empty.
func (s State) Validate() error {
	if s.CurrentHigh < 0 {
		return fmt.Errorf("current high %d is negative", s.CurrentHigh)
	}
	for i, r := range s.History {
		if r.Value < 0 {
			return fmt.Errorf("history[%d]: value %d is negative", i, r.Value)
		}
		if r.ObservedAt.IsZero() {
			return fmt.Errorf("history[%d]: missing timestamp", i)
		}
		if i > 0 && r.Value >= s.History[i-1].Value {
			return fmt.Errorf("history[%d]: value %d does not precede %d", i, r.Value, s.History[i-1].Value)
		}
	}
	if len(s.History) > 0 && s.History[0].Value != s.CurrentHigh {
		return fmt.Errorf("history head %d does not match current high %d", s.History[0].Value, s.CurrentHigh)
	}
	return nil
}

// ValidateObservation converts a raw upstream number into an observation.
// NaN, infinities, negative and fractional values are rejected.
func ValidateObservation(v float64) (int64, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, fmt.Errorf("%w: %v is not finite", ErrInvalidObservation, v)
	case v < 0:
		return 0, fmt.Errorf("%w: %v is negative", ErrInvalidObservation, v)
	case v != math.Trunc(v):
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidObservation, v)
	case v >= math.MaxInt64:
		return 0, fmt.Errorf("%w: %v is out of range", ErrInvalidObservation, v)
	}
	return int64(v), nil
}

// ParseObservation converts a numeric literal into an observation. Integer
// literals are parsed exactly; anything else goes through ValidateObservation.
func ParseObservation(s string) (int64, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if i < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrInvalidObservation, i)
		}
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidObservation, s)
	}
	return ValidateObservation(f)
}

var (
	// ErrInvalidObservation is returned for values that are not finite
	// non-negative integers.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrPersistence is returned by Observe when the next state could not be
	// written to durable storage. The in-memory state is left unchanged.
	ErrPersistence = errors.New("persistence failed")

	// ErrMalformedState is returned by loaders when the persisted document
	// exists but does not decode to a valid State.
	ErrMalformedState = errors.New("malformed persisted state")
)
