package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/config"
	"github.com/HatiCode/peakwatch/pkg/records"
)

func TestOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      *config.Config
		wantName string
		wantErr  bool
	}{
		{
			name:     "file",
			cfg:      &config.Config{Storage: "file", StateFile: filepath.Join(dir, "state", "allTimeHigh.json")},
			wantName: "file",
		},
		{
			name:     "memory",
			cfg:      &config.Config{Storage: "memory"},
			wantName: "memory",
		},
		{
			name:     "sqlite",
			cfg:      &config.Config{Storage: "sqlite", SQLitePath: filepath.Join(dir, "peakwatch.db")},
			wantName: "sqlite",
		},
		{
			name:    "redis unreachable",
			cfg:     &config.Config{Storage: "redis", RedisAddr: "127.0.0.1:1"},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     &config.Config{Storage: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := Open(tt.cfg, logger)
			if tt.wantErr {
				if err == nil {
					backend.Close()
					t.Fatal("Open() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer backend.Close()

			if backend.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", backend.Name(), tt.wantName)
			}

			ctx := context.Background()
			state := records.State{
				CurrentHigh: 42,
				History:     []records.Record{{Value: 42, ObservedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}},
			}
			if err := backend.Save(ctx, state); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := backend.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded == nil || loaded.CurrentHigh != 42 {
				t.Errorf("Load() = %+v, want current high 42", loaded)
			}
		})
	}
}
