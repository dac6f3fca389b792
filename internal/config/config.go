// Package config loads the reader configuration from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

type Config struct {
	Reader ReaderConfig `yaml:"reader"`
	File   FileConfig   `yaml:"file"`
	Bridge BridgeConfig `yaml:"bridge"`
	Log    LogConfig    `yaml:"log"`
}

// ---- READER ----

type ReaderConfig struct {
	Name      string `yaml:"name"` // Substring of the PC/SC reader name, empty keeps all readers
	TimeoutMs int    `yaml:"timeout_ms"`
	PollMs    int    `yaml:"poll_ms"`
	WarmReset bool   `yaml:"warm_reset"`
	Slot      int    `yaml:"slot"`
}

func (r ReaderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func (r ReaderConfig) PollInterval() time.Duration {
	return time.Duration(r.PollMs) * time.Millisecond
}

// ---- FILE ----

type FileConfig struct {
	Directory    string `yaml:"directory"`     // DF identifier, hex
	DirectoryAID string `yaml:"directory_aid"` // Takes precedence over directory when set, hex
	FileID       string `yaml:"file_id"`       // EF identifier, hex
	ChunkSize    int    `yaml:"chunk_size"`
	Le           int    `yaml:"le"`
	ReadOnInsert bool   `yaml:"read_on_insert"`
	Report       bool   `yaml:"report"` // Print the per-command report after a read on insert
}

// DirectoryFID returns the directory identifier.
func (f FileConfig) DirectoryFID() (uint16, error) {
	return parseFID(f.Directory)
}

// AID returns the directory application identifier, nil when unset.
func (f FileConfig) AID() ([]byte, error) {
	if f.DirectoryAID == "" {
		return nil, nil
	}
	return codec.Decode(f.DirectoryAID)
}

// FID returns the EF identifier.
func (f FileConfig) FID() (uint16, error) {
	return parseFID(f.FileID)
}

// ---- BRIDGE ----

type BridgeConfig struct {
	Listen string `yaml:"listen"` // host:port, empty disables the bridge
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment overrides.
const (
	EnvReader    = "SCR_READER"
	EnvTimeoutMs = "SCR_TIMEOUT_MS"
	EnvListen    = "SCR_LISTEN"
	EnvLogLevel  = "SCR_LOG_LEVEL"
)

// Load reads path (skipped when empty), applies the environment overrides and the defaults,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}

	Normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the SCR_* variables found through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvReader); v != "" {
		cfg.Reader.Name = v
	}
	if v := getenv(EnvTimeoutMs); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeoutMs, err)
		}
		cfg.Reader.TimeoutMs = ms
	}
	if v := getenv(EnvListen); v != "" {
		cfg.Bridge.Listen = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func parseFID(s string) (uint16, error) {
	b, err := codec.Decode(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, fmt.Errorf("file identifier %q must be 2 bytes", s)
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
