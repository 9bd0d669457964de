//go:build windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const pipePrefix = `\\.\pipe\`

const pipeBufferSize = 64 * 1024

// WindowsPipePath maps a socket path to a named pipe. Paths already in
// the pipe namespace are returned unchanged.
func WindowsPipePath(socketPath string) string {
	if strings.HasPrefix(socketPath, pipePrefix) {
		return socketPath
	}
	base := strings.TrimSuffix(filepath.Base(socketPath), filepath.Ext(socketPath))
	user := os.Getenv("USERNAME")
	if user == "" {
		user = "default"
	}
	return fmt.Sprintf(`%sstepcap-%s-%s`, pipePrefix, user, base)
}

// ownerOnlySDDL grants the current user full access and nobody else.
func ownerOnlySDDL() (string, error) {
	u, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("ipc: current user: %w", err)
	}
	return fmt.Sprintf("D:P(A;;GA;;;%s)", u.User.Sid.String()), nil
}

func listen(path string) (net.Listener, error) {
	sddl, err := ownerOnlySDDL()
	if err != nil {
		return nil, err
	}
	name := WindowsPipePath(path)
	ln, err := winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: sddl,
		InputBufferSize:    pipeBufferSize,
		OutputBufferSize:   pipeBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %s: %w", name, err)
	}
	return ln, nil
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, WindowsPipePath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%w at %s", ErrDaemonNotRunning, path)
		}
		return nil, err
	}
	return conn, nil
}

// The pipe DACL admits only the owner.
func verifyPeer(net.Conn) (bool, error) { return true, nil }

// Named pipes vanish with their last handle.
func cleanupSocket(string) error { return nil }

// IsSocketListening reports whether a daemon owns the pipe.
func IsSocketListening(path string) bool {
	timeout := 200 * time.Millisecond
	conn, err := winio.DialPipe(WindowsPipePath(path), &timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
