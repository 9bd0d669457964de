//go:build !windows

package input

// NewSystemSource is only implemented on Windows.
func NewSystemSource() (Source, error) {
	return nil, ErrNotAvailable
}
