// Package config handles configuration loading, validation and hot reload
// for stepcap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"stepcap/internal/input"
	"stepcap/internal/screen"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Capture configures the sampling loop.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Screenshot configures the screen capturer.
	Screenshot ScreenshotConfig `toml:"screenshot" json:"screenshot" yaml:"screenshot"`

	// IPC configures the control and event transport.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Schema configures record validation before publishing.
	Schema SchemaConfig `toml:"schema" json:"schema" yaml:"schema"`
}

// CaptureConfig holds the sampling loop settings.
type CaptureConfig struct {
	// TickMs is the sampling period in milliseconds.
	TickMs int `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms"`

	// ClickDebounceMs is the minimum spacing between accepted clicks.
	ClickDebounceMs int `toml:"click_debounce_ms" json:"click_debounce_ms" yaml:"click_debounce_ms"`

	// KeystrokeDebounceMs is the minimum spacing between accepted key
	// presses and manual captures.
	KeystrokeDebounceMs int `toml:"keystroke_debounce_ms" json:"keystroke_debounce_ms" yaml:"keystroke_debounce_ms"`

	// SettleMs is the pause after a resolved click before it is emitted.
	SettleMs int `toml:"settle_ms" json:"settle_ms" yaml:"settle_ms"`

	// ManualHotkey is the chord for a manual screenshot, e.g. "alt+semicolon".
	ManualHotkey string `toml:"manual_hotkey" json:"manual_hotkey" yaml:"manual_hotkey"`

	// SelfIdentifiers are window title substrings that mark stepcap's own
	// windows. Matching is case-insensitive.
	SelfIdentifiers []string `toml:"self_identifiers" json:"self_identifiers" yaml:"self_identifiers"`

	// MonitoredKeys are checked in the listed order every tick.
	MonitoredKeys []string `toml:"monitored_keys" json:"monitored_keys" yaml:"monitored_keys"`

	// CaptureTimeoutMs bounds a single screenshot. Zero is unbounded.
	CaptureTimeoutMs int `toml:"capture_timeout_ms" json:"capture_timeout_ms" yaml:"capture_timeout_ms"`

	// AutoStart starts tracking as soon as the daemon is up.
	AutoStart bool `toml:"auto_start" json:"auto_start" yaml:"auto_start"`
}

// ScreenshotConfig holds screen capture settings.
type ScreenshotConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Format      string `toml:"format" json:"format" yaml:"format"`
	JPEGQuality int    `toml:"jpeg_quality" json:"jpeg_quality" yaml:"jpeg_quality"`
}

// IPCConfig holds transport settings.
type IPCConfig struct {
	// Enabled turns the IPC server on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is a Unix socket path, or a named pipe path on Windows.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxClients caps concurrent connections.
	MaxClients int `toml:"max_clients" json:"max_clients" yaml:"max_clients"`

	// EventQueue is the per-subscriber event buffer.
	EventQueue int `toml:"event_queue" json:"event_queue" yaml:"event_queue"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the file at this size.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// CrashDir receives JSON panic dumps. Empty disables them.
	CrashDir string `toml:"crash_dir" json:"crash_dir" yaml:"crash_dir"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// SchemaConfig holds record validation settings.
type SchemaConfig struct {
	ValidateRecords bool `toml:"validate_records" json:"validate_records" yaml:"validate_records"`
}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Capture: CaptureConfig{
			TickMs:              10,
			ClickDebounceMs:     50,
			KeystrokeDebounceMs: 150,
			SettleMs:            50,
			ManualHotkey:        "alt+semicolon",
			SelfIdentifiers:     []string{"MataPass"},
			MonitoredKeys:       DefaultMonitoredKeyNames(),
		},
		Screenshot: ScreenshotConfig{
			Enabled:     true,
			Format:      string(screen.FormatJPEG),
			JPEGQuality: screen.DefaultJPEGQuality,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: DefaultSocketPath(),
			MaxClients: 16,
			EventQueue: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "stepcap.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			CrashDir:   filepath.Join(PlatformLogDir(), "crashes"),
		},
		Metrics: MetricsConfig{Enabled: true},
		Schema:  SchemaConfig{ValidateRecords: false},
	}
}

// DefaultMonitoredKeyNames lists the monitored keys in check order.
func DefaultMonitoredKeyNames() []string {
	return []string{"tab", "enter", "space", "escape", "left", "up", "right", "down"}
}

// ConfigPath returns the configuration file path, honoring STEPCAP_CONFIG.
func ConfigPath() string {
	if v := os.Getenv("STEPCAP_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// ApplyEnvOverrides applies STEPCAP_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("STEPCAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STEPCAP_SOCKET"); v != "" {
		c.IPC.SocketPath = v
	}
	if v, ok := os.LookupEnv("STEPCAP_SELF_IDENTIFIERS"); ok {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.Capture.SelfIdentifiers = ids
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Capture.SelfIdentifiers = append([]string(nil), c.Capture.SelfIdentifiers...)
	clone.Capture.MonitoredKeys = append([]string(nil), c.Capture.MonitoredKeys...)
	return &clone
}

// Tick returns the sampling period.
func (c *CaptureConfig) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// ClickInterval returns the click debounce interval.
func (c *CaptureConfig) ClickInterval() time.Duration {
	return time.Duration(c.ClickDebounceMs) * time.Millisecond
}

// KeystrokeInterval returns the keystroke debounce interval.
func (c *CaptureConfig) KeystrokeInterval() time.Duration {
	return time.Duration(c.KeystrokeDebounceMs) * time.Millisecond
}

// Settle returns the post-resolution pause for clicks.
func (c *CaptureConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// CaptureTimeout returns the screenshot bound, zero when unbounded.
func (c *CaptureConfig) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMs) * time.Millisecond
}

// Hotkey parses ManualHotkey.
func (c *CaptureConfig) Hotkey() (input.Hotkey, error) {
	return input.ParseHotkey(c.ManualHotkey)
}

// Keys parses MonitoredKeys, preserving order.
func (c *CaptureConfig) Keys() ([]input.VirtualKey, error) {
	return input.ParseKeys(c.MonitoredKeys)
}

// ScreenOptions converts the screenshot section to capturer options.
func (c *Config) ScreenOptions() (screen.Options, error) {
	f, err := screen.ParseFormat(c.Screenshot.Format)
	if err != nil {
		return screen.Options{}, err
	}
	return screen.Options{
		Enabled: c.Screenshot.Enabled,
		Format:  f,
		Quality: c.Screenshot.JPEGQuality,
		Timeout: c.Capture.CaptureTimeout(),
	}, nil
}

// SaveConfig writes the configuration as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	return nil
}
