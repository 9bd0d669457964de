//go:build !windows && !linux && !darwin

package ipc

import "net"

// Only the 0600 socket mode guards the connection here.
func verifyPeer(net.Conn) (bool, error) { return true, nil }
