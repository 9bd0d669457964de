package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - Windows: %APPDATA%\stepcap\
//   - macOS:   ~/Library/Application Support/stepcap/
//   - Linux:   $XDG_CONFIG_HOME/stepcap/ or ~/.config/stepcap/
func PlatformConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "stepcap")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stepcap")
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "stepcap", "logs")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "stepcap")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			home, _ := os.UserHomeDir()
			stateHome = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(stateHome, "stepcap")
	}
}

// DefaultSocketPath returns the control endpoint: a per-user named pipe
// on Windows, a Unix socket elsewhere.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\stepcap-` + userName()
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "stepcap.sock")
	}
	return filepath.Join(os.TempDir(), "stepcap-"+strconv.Itoa(os.Getuid())+".sock")
}

func userName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return sanitizePipeName(u.Username)
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return sanitizePipeName(v)
	}
	return "default"
}

// sanitizePipeName keeps a DOMAIN\user name usable in a pipe path.
func sanitizePipeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '\\' || r == '/' || r == ' ' {
			out[i] = '_'
		}
	}
	return string(out)
}

// SupportedConfigFormats returns the accepted config file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile returns the first config.<ext> found in the working
// directory or the config directory, or "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
