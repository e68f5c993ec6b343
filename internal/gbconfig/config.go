// Package gbconfig loads and validates the process configuration: layered
// TOML defaults plus an optional override file. Grounded on
// ternarybob-quaero/internal/common/config.go's struct-of-structs TOML
// layout and LoadFromFiles/NewDefaultConfig pattern.
package gbconfig

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level process configuration.
type Config struct {
	Job         JobConfig         `toml:"job"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig     `toml:"logging"`
}

// JobConfig controls the fiber-backed job scheduler.
type JobConfig struct {
	ThreadCount int  `toml:"thread_count"` // 0 or negative means hardware-concurrency relative
	PinThreads  bool `toml:"pin_threads"`
}

// LedgerConfig controls the durable resource-ID seed store.
type LedgerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path" validate:"required_if=Enabled true"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// DiagnosticsConfig controls the live websocket diagnostics endpoint.
type DiagnosticsConfig struct {
	Enabled      bool   `toml:"enabled"`
	Host         string `toml:"host"`
	Port         int    `toml:"port" validate:"min=0,max=65535"`
	SnapshotRate string `toml:"snapshot_rate"` // e.g. "1s"
}

// MaintenanceConfig controls the cron-scheduled resource sweep.
type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule" validate:"required_if=Enabled true"` // cron expression
}

// LoggingConfig controls arbor's output.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json text"`
}

// NewDefault returns the built-in defaults, valid on their own.
func NewDefault() *Config {
	return &Config{
		Job: JobConfig{
			ThreadCount: 0,
			PinThreads:  false,
		},
		Ledger: LedgerConfig{
			Enabled:        false,
			Path:           "./data/ledger",
			ResetOnStartup: false,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:      false,
			Host:         "127.0.0.1",
			Port:         8089,
			SnapshotRate: "1s",
		},
		Maintenance: MaintenanceConfig{
			Enabled:  false,
			Schedule: "@every 1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile starts from NewDefault and overlays path's TOML contents, if
// it exists. A missing file is not an error; the defaults are returned
// unchanged. The result is validated before being returned.
func LoadFromFile(path string) (*Config, error) {
	cfg := NewDefault()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("gbconfig: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gbconfig: parsing %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate runs struct validation tags over cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("gbconfig: invalid configuration: %w", err)
	}
	return nil
}
