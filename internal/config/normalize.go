package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs = 5000
	DefaultPollMs    = 250
	DefaultDirectory = "3F00"
	DefaultChunkSize = 253
	DefaultLe        = 0xFF
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Normalize fills unset fields with defaults and canonicalizes hex and enum values.
// It is allowed to mutate configuration and runs before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- reader ----
	if cfg.Reader.TimeoutMs == 0 {
		cfg.Reader.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Reader.PollMs == 0 {
		cfg.Reader.PollMs = DefaultPollMs
	}

	// ---- file ----
	cfg.File.Directory = normalizeHex(cfg.File.Directory)
	cfg.File.DirectoryAID = normalizeHex(cfg.File.DirectoryAID)
	cfg.File.FileID = normalizeHex(cfg.File.FileID)
	if cfg.File.Directory == "" {
		cfg.File.Directory = DefaultDirectory
	}
	if cfg.File.ChunkSize == 0 {
		cfg.File.ChunkSize = DefaultChunkSize
	}
	if cfg.File.Le == 0 {
		cfg.File.Le = DefaultLe
	}

	// ---- log ----
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// normalizeHex upper-cases s and drops spaces and an optional 0x prefix.
func normalizeHex(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return strings.ToUpper(s)
}
