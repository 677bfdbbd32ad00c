// Package storage persists the record state.
//
// Every backend stores the same JSON document (see Encode) and implements
// Backend, which satisfies both records.Loader and records.Persister:
//
//   - FileBackend: a local JSON file replaced atomically on every save (default).
//   - MemoryBackend: process memory only; used by tests and ephemeral runs.
//   - RedisBackend: the document under a single Redis key.
//   - SQLiteBackend: the document in a single-row SQLite table.
package storage

import (
	"context"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// Backend is durable storage for one records.State.
//
// Load returns (nil, nil) when nothing has been saved yet, and an error
// wrapping records.ErrMalformedState when the stored document is unusable.
// Save must be atomic: a failed Save leaves the previous document intact.
type Backend interface {
	Load(ctx context.Context) (*records.State, error)
	Save(ctx context.Context, state records.State) error
	Name() string
	Close() error
}
