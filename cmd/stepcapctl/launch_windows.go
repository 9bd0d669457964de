//go:build windows

package main

import "syscall"

const exeSuffix = ".exe"

// getDaemonSysProcAttr runs the daemon without a console window.
func getDaemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow: true,
	}
}
