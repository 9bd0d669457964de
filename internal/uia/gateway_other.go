//go:build !windows

package uia

// Open is only implemented on Windows.
func Open() (Gateway, error) {
	return nil, ErrNotAvailable
}
