package dxlink

import "errors"

var (
	// ErrReadTimeout means no message arrived within the per-read timeout.
	// Collection loops treat it as an empty tick.
	ErrReadTimeout = errors.New("dxlink: read timeout")

	// ErrClosed is returned once the connection is gone.
	ErrClosed = errors.New("dxlink: session closed")

	// ErrMalformed wraps messages that are not valid protocol JSON.
	ErrMalformed = errors.New("dxlink: malformed message")

	ErrHandshake    = errors.New("dxlink: handshake failed")
	ErrAuthRejected = errors.New("dxlink: authorization rejected")
)

// IsTolerated reports whether err is a per-tick condition a polling loop
// should absorb rather than abort on.
func IsTolerated(err error) bool {
	return errors.Is(err, ErrReadTimeout) || errors.Is(err, ErrMalformed)
}
