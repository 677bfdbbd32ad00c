package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/utils/v4"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// FileBackend keeps the state in a single JSON file. Saves write a temporary
// file in the same directory, sync it and rename it over the target, so a
// crash mid-write leaves the previous document in place.
//
// The write itself cannot be interrupted. When ctx ends first, Save returns
// ctx.Err() and the write finishes in the background; the next Save waits for
// it, so writes land in call order.
type FileBackend struct {
	path  string
	write func(path string, data []byte, perm os.FileMode) error

	// slot is held from the start of a write until it completes.
	slot chan struct{}
}

// NewFileBackend returns a backend for path, creating its directory if needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("file backend: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &FileBackend{path: path, write: utils.AtomicWriteFile, slot: make(chan struct{}, 1)}, nil
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the state file location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) (*records.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return Decode(data)
}

func (b *FileBackend) Save(ctx context.Context, state records.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	select {
	case b.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("write state file: %w", ctx.Err())
	}

	write := b.write
	done := make(chan error, 1)
	go func() {
		defer func() { <-b.slot }()
		done <- write(b.path, data, 0o644)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("write state file: %w", ctx.Err())
	}
}

func (b *FileBackend) Close() error { return nil }
