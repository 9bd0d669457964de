//go:build !windows

package main

import "syscall"

const exeSuffix = ""

// getDaemonSysProcAttr puts the daemon in its own session so it outlives
// the terminal.
func getDaemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
