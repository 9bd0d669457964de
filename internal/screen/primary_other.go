//go:build !windows

package screen

import "stepcap/internal/model"

func primaryScreen(b SystemBackend) (model.ScreenContext, error) {
	displays, err := b.Displays()
	if err != nil {
		return model.ScreenContext{}, err
	}
	return primaryFromDisplays(displays)
}
