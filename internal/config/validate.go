package config

import (
	"fmt"
	"net"
	"slices"
)

// Validate checks configuration correctness.
// It performs declarative validation only and MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- reader ----
	if cfg.Reader.TimeoutMs <= 0 {
		return fmt.Errorf("reader.timeout_ms must be positive, got %d", cfg.Reader.TimeoutMs)
	}
	if cfg.Reader.PollMs <= 0 {
		return fmt.Errorf("reader.poll_ms must be positive, got %d", cfg.Reader.PollMs)
	}
	if cfg.Reader.Slot < 0 {
		return fmt.Errorf("reader.slot must not be negative, got %d", cfg.Reader.Slot)
	}

	// ---- file ----
	if _, err := cfg.File.DirectoryFID(); err != nil {
		return fmt.Errorf("file.directory: %w", err)
	}
	aid, err := cfg.File.AID()
	if err != nil {
		return fmt.Errorf("file.directory_aid: %w", err)
	}
	if aid != nil && (len(aid) < 5 || len(aid) > 16) {
		return fmt.Errorf("file.directory_aid must be 5 to 16 bytes, got %d", len(aid))
	}

	if cfg.File.FileID != "" {
		if _, err := cfg.File.FID(); err != nil {
			return fmt.Errorf("file.file_id: %w", err)
		}
	} else if cfg.File.ReadOnInsert {
		return fmt.Errorf("file.read_on_insert requires file.file_id")
	}

	// Each batch must also cover the 2-byte length header re-read at offset 0.
	if cfg.File.ChunkSize < 1 || cfg.File.ChunkSize > 254 {
		return fmt.Errorf("file.chunk_size must be within 1-254, got %d", cfg.File.ChunkSize)
	}
	if cfg.File.Le < cfg.File.ChunkSize+2 || cfg.File.Le > 256 {
		return fmt.Errorf("file.le must be within %d-256, got %d", cfg.File.ChunkSize+2, cfg.File.Le)
	}

	// ---- bridge ----
	if cfg.Bridge.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Bridge.Listen); err != nil {
			return fmt.Errorf("bridge.listen: %w", err)
		}
	}

	// ---- log ----
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, cfg.Log.Format) {
		return fmt.Errorf("log.format %q is not one of text, json", cfg.Log.Format)
	}

	return nil
}
