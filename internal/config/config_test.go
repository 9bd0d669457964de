package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"stepcap/internal/input"
	"stepcap/internal/screen"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if got := cfg.Capture.Tick(); got != 10*time.Millisecond {
		t.Errorf("expected 10ms tick, got %v", got)
	}
	if got := cfg.Capture.ClickInterval(); got != 50*time.Millisecond {
		t.Errorf("expected 50ms click debounce, got %v", got)
	}
	if got := cfg.Capture.KeystrokeInterval(); got != 150*time.Millisecond {
		t.Errorf("expected 150ms keystroke debounce, got %v", got)
	}
	if got := cfg.Capture.Settle(); got != 50*time.Millisecond {
		t.Errorf("expected 50ms settle, got %v", got)
	}
	if cfg.Capture.CaptureTimeout() != 0 {
		t.Errorf("expected unbounded capture by default")
	}

	hk, err := cfg.Capture.Hotkey()
	if err != nil {
		t.Fatalf("Hotkey: %v", err)
	}
	if !reflect.DeepEqual(hk, input.DefaultHotkey) {
		t.Errorf("expected alt+semicolon, got %+v", hk)
	}

	keys, err := cfg.Capture.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !reflect.DeepEqual(keys, input.DefaultMonitoredKeys()) {
		t.Errorf("monitored keys out of order: %v", keys)
	}

	opts, err := cfg.ScreenOptions()
	if err != nil {
		t.Fatalf("ScreenOptions: %v", err)
	}
	if opts.Format != screen.FormatJPEG || opts.Quality != 85 || !opts.Enabled {
		t.Errorf("unexpected screen options: %+v", opts)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("STEPCAP_CONFIG", "")
	path := ConfigPath()
	if !strings.HasSuffix(path, filepath.Join("stepcap", "config.toml")) {
		t.Errorf("expected path ending with stepcap/config.toml, got %s", path)
	}

	t.Setenv("STEPCAP_CONFIG", "/etc/stepcap.toml")
	if got := ConfigPath(); got != "/etc/stepcap.toml" {
		t.Errorf("STEPCAP_CONFIG ignored: %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.TickMs != 10 {
		t.Errorf("expected defaults, got tick %d", cfg.Capture.TickMs)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "config.toml", `
[capture]
settle_ms = 75
self_identifiers = ["StepCap", "Guide Editor"]
monitored_keys = ["enter", "tab"]

[screenshot]
format = "png"
`},
		{"json", "config.json", `{
  "capture": {"settle_ms": 75, "self_identifiers": ["StepCap", "Guide Editor"], "monitored_keys": ["enter", "tab"]},
  "screenshot": {"format": "png"}
}`},
		{"yaml", "config.yaml", `
capture:
  settle_ms: 75
  self_identifiers: [StepCap, Guide Editor]
  monitored_keys: [enter, tab]
screenshot:
  format: png
`},
		{"unknown extension", "stepcap.conf", `
[capture]
settle_ms = 75
self_identifiers = ["StepCap", "Guide Editor"]
monitored_keys = ["enter", "tab"]

[screenshot]
format = "png"
`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Capture.SettleMs != 75 {
				t.Errorf("settle_ms = %d", cfg.Capture.SettleMs)
			}
			if cfg.Capture.TickMs != 10 {
				t.Errorf("unset fields must keep defaults, tick_ms = %d", cfg.Capture.TickMs)
			}
			if !reflect.DeepEqual(cfg.Capture.SelfIdentifiers, []string{"StepCap", "Guide Editor"}) {
				t.Errorf("self_identifiers = %v", cfg.Capture.SelfIdentifiers)
			}
			keys, err := cfg.Capture.Keys()
			if err != nil || !reflect.DeepEqual(keys, []input.VirtualKey{input.VKReturn, input.VKTab}) {
				t.Errorf("monitored keys = %v, %v", keys, err)
			}
			if cfg.Screenshot.Format != "png" {
				t.Errorf("format = %s", cfg.Screenshot.Format)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[capture]
tick_ms = 0
manual_hotkey = "alt+nope"
monitored_keys = ["tab", "shift", "tab"]

[screenshot]
format = "gif"
jpeg_quality = 101

[logging]
level = "loud"
output = "file"
file_path = ""
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	want := map[string]bool{
		"capture.tick_ms":         true,
		"capture.manual_hotkey":   true,
		"capture.monitored_keys":  true,
		"screenshot.format":       true,
		"screenshot.jpeg_quality": true,
		"logging.level":           true,
		"logging.file_path":       true,
	}
	got := map[string]int{}
	for _, f := range verrs.Fields() {
		got[f]++
	}
	for f := range want {
		if got[f] == 0 {
			t.Errorf("missing error for %s in %v", f, verrs)
		}
	}
	if got["capture.monitored_keys"] != 2 {
		t.Errorf("expected no-action and duplicate errors for monitored_keys, got %d", got["capture.monitored_keys"])
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture\ntick_ms = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "decode TOML") {
		t.Errorf("expected TOML decode error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STEPCAP_LOG_LEVEL", "debug")
	t.Setenv("STEPCAP_SOCKET", "/tmp/test.sock")
	t.Setenv("STEPCAP_SELF_IDENTIFIERS", " StepCap , ,Recorder")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/test.sock" {
		t.Errorf("socket = %s", cfg.IPC.SocketPath)
	}
	if !reflect.DeepEqual(cfg.Capture.SelfIdentifiers, []string{"StepCap", "Recorder"}) {
		t.Errorf("self identifiers = %q", cfg.Capture.SelfIdentifiers)
	}
}

func TestSaveAndLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !created {
		t.Error("expected file to be created")
	}

	cfg.Capture.SettleMs = 120
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	again, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if created {
		t.Error("file should already exist")
	}
	if again.Capture.SettleMs != 120 {
		t.Errorf("settle_ms = %d", again.Capture.SettleMs)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Capture.SelfIdentifiers[0] = "changed"
	clone.Capture.MonitoredKeys[0] = "up"
	if cfg.Capture.SelfIdentifiers[0] != "MataPass" || cfg.Capture.MonitoredKeys[0] != "tab" {
		t.Error("clone shares slices with original")
	}
}

func TestDefaultSocketPath(t *testing.T) {
	if DefaultSocketPath() == "" {
		t.Fatal("empty socket path")
	}
	if got := sanitizePipeName(`CORP\jo smith`); got != "CORP_jo_smith" {
		t.Errorf("sanitizePipeName = %s", got)
	}
}
