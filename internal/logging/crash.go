package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version,omitempty"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	Operation    string    `json:"operation"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
	SessionID    string    `json:"session_id,omitempty"`
}

// CrashHandler recovers panics, logs them and optionally writes a JSON
// dump per panic.
type CrashHandler struct {
	logger   *slog.Logger
	crashDir string
	version  string

	mu        sync.Mutex
	sessionID string
	onCrash   func(CrashReport)

	count atomic.Uint64
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler logging to logger. An empty crashDir
// disables dump files.
func NewCrashHandler(logger *slog.Logger, crashDir, version string) *CrashHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{logger: logger, crashDir: crashDir, version: version}
}

// SetSessionID tags subsequent reports with a tracking session.
func (h *CrashHandler) SetSessionID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = id
}

// OnCrash registers a callback run after each report is logged.
func (h *CrashHandler) OnCrash(fn func(CrashReport)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCrash = fn
}

// Count returns the number of panics recovered so far.
func (h *CrashHandler) Count() uint64 {
	return h.count.Load()
}

// Guard runs fn and recovers a panic raised by it. It reports whether a
// panic was recovered.
func (h *CrashHandler) Guard(op string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.handle(op, r)
		}
	}()
	fn()
	return false
}

func (h *CrashHandler) handle(op string, value any) {
	h.count.Add(1)

	h.mu.Lock()
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		Operation:    op,
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
		SessionID:    h.sessionID,
	}
	onCrash := h.onCrash
	h.mu.Unlock()

	h.logger.Error("recovered panic",
		"op", op,
		"panic", report.PanicValue,
		"stack", report.StackTrace,
	)

	if h.crashDir != "" {
		if path, err := h.writeDump(report); err != nil {
			h.logger.Warn("write crash dump", "error", err)
		} else {
			h.logger.Info("crash dump written", "path", path)
		}
	}

	if onCrash != nil {
		onCrash(report)
	}
}

func (h *CrashHandler) writeDump(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0o750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%d.json", report.Timestamp.Format("20060102-150405"), h.count.Load())
	path := filepath.Join(h.crashDir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports reads the dumps in the crash directory, oldest first.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	if h.crashDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
