//go:build windows && !cgo

package uia

// Open requires cgo for the COM client.
func Open() (Gateway, error) {
	return nil, ErrNotAvailable
}
