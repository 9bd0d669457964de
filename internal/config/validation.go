package config

import (
	"fmt"
	"strings"

	"stepcap/internal/input"
	"stepcap/internal/logging"
	"stepcap/internal/screen"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig returns ValidationErrors listing every problem, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateCapture(&c.Capture)...)
	errs = append(errs, validateScreenshot(&c.Screenshot)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCapture(c *CaptureConfig) ValidationErrors {
	var errs ValidationErrors

	if c.TickMs < 1 || c.TickMs > 1000 {
		errs = append(errs, rangeError("capture.tick_ms", 1, 1000))
	}
	if c.ClickDebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "capture.click_debounce_ms", Message: "cannot be negative"})
	}
	if c.KeystrokeDebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "capture.keystroke_debounce_ms", Message: "cannot be negative"})
	}
	if c.SettleMs < 0 || c.SettleMs > 5000 {
		errs = append(errs, rangeError("capture.settle_ms", 0, 5000))
	}
	if c.CaptureTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "capture.capture_timeout_ms", Message: "cannot be negative"})
	}
	if _, err := input.ParseHotkey(c.ManualHotkey); err != nil {
		errs = append(errs, ValidationError{Field: "capture.manual_hotkey", Message: err.Error()})
	}

	seen := make(map[input.VirtualKey]bool, len(c.MonitoredKeys))
	for _, name := range c.MonitoredKeys {
		vk, err := input.ParseKey(name)
		if err != nil {
			errs = append(errs, ValidationError{Field: "capture.monitored_keys", Message: err.Error()})
			continue
		}
		if _, ok := input.ActionName(vk); !ok {
			errs = append(errs, ValidationError{
				Field:   "capture.monitored_keys",
				Message: fmt.Sprintf("key %q has no action type", name),
			})
		}
		if seen[vk] {
			errs = append(errs, ValidationError{
				Field:   "capture.monitored_keys",
				Message: fmt.Sprintf("duplicate key %q", name),
			})
		}
		seen[vk] = true
	}

	return errs
}

func validateScreenshot(s *ScreenshotConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := screen.ParseFormat(s.Format); err != nil {
		errs = append(errs, ValidationError{Field: "screenshot.format", Message: err.Error()})
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		errs = append(errs, rangeError("screenshot.jpeg_quality", 1, 100))
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		})
	}
	if i.MaxClients < 1 {
		errs = append(errs, ValidationError{Field: "ipc.max_clients", Message: "must be at least 1"})
	}
	if i.EventQueue < 1 {
		errs = append(errs, ValidationError{Field: "ipc.event_queue", Message: "must be at least 1"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}
	return errs
}

func rangeError(field string, min, max int) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be between %d and %d", min, max),
	}
}
