//go:build windows

package screen

import (
	"golang.org/x/sys/windows"

	"stepcap/internal/model"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
)

const (
	smCXScreen = 0
	smCYScreen = 1
)

// primaryScreen asks the OS for the primary display size in virtual pixels.
func primaryScreen(b SystemBackend) (model.ScreenContext, error) {
	if err := procGetSystemMetrics.Find(); err != nil {
		displays, _ := b.Displays()
		return primaryFromDisplays(displays)
	}
	w, _, _ := procGetSystemMetrics.Call(smCXScreen)
	h, _, _ := procGetSystemMetrics.Call(smCYScreen)
	return model.ScreenContext{Width: int(int32(w)), Height: int(int32(h))}, nil
}
