package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// documentVersion is written into every saved document.
const documentVersion = 1

type document struct {
	Version     int              `json:"version,omitempty"`
	CurrentHigh *int64           `json:"currentHigh,omitempty"`
	History     []recordDocument `json:"history"`

	// AllTimeHigh is the only field of documents written before history
	// tracking existed: {"allTimeHigh": n}.
	AllTimeHigh *int64 `json:"allTimeHigh,omitempty"`
}

type recordDocument struct {
	Value      *int64 `json:"value"`
	ObservedAt string `json:"observedAt"`
}

// Encode renders state as the persisted JSON document:
//
//	{"version":1,"currentHigh":600,"history":[{"value":600,"observedAt":"2026-10-19T12:00:00Z"}]}
func Encode(state records.State) ([]byte, error) {
	high := state.CurrentHigh
	doc := document{
		Version:     documentVersion,
		CurrentHigh: &high,
		History:     make([]recordDocument, 0, len(state.History)),
	}
	for _, r := range state.History {
		v := r.Value
		doc.History = append(doc.History, recordDocument{
			Value:      &v,
			ObservedAt: r.ObservedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return json.Marshal(doc)
}

// Decode parses a persisted document. The whole document is either accepted
// or rejected: any schema or invariant violation returns an error wrapping
// records.ErrMalformedState and no partial state.
func Decode(data []byte) (*records.State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", records.ErrMalformedState)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", records.ErrMalformedState, err)
	}

	state := &records.State{}
	switch {
	case doc.CurrentHigh != nil:
		state.CurrentHigh = *doc.CurrentHigh
	case doc.AllTimeHigh != nil && len(doc.History) == 0:
		state.CurrentHigh = *doc.AllTimeHigh
	default:
		return nil, fmt.Errorf("%w: missing currentHigh", records.ErrMalformedState)
	}

	for i, rd := range doc.History {
		if rd.Value == nil {
			return nil, fmt.Errorf("%w: history[%d]: missing value", records.ErrMalformedState, i)
		}
		ts, err := time.Parse(time.RFC3339Nano, rd.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: history[%d]: %v", records.ErrMalformedState, i, err)
		}
		state.History = append(state.History, records.Record{Value: *rd.Value, ObservedAt: ts.UTC()})
	}

	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", records.ErrMalformedState, err)
	}
	return state, nil
}
