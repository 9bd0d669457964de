//go:build windows

package uia

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
)

const maxTitleLen = 512

// foregroundWindowTitle reads the title of the foreground window. A missing
// window or an untitled one yields "".
func foregroundWindowTitle() (string, error) {
	if err := procGetWindowTextW.Find(); err != nil {
		return "", err
	}
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", nil
	}
	buf := make([]uint16, maxTitleLen)
	n, _, err := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if int32(n) <= 0 {
		if err != nil && err != windows.ERROR_SUCCESS {
			return "", err
		}
		return "", nil
	}
	return windows.UTF16ToString(buf[:n]), nil
}
