package types

import "errors"

var (
	// ErrNotThisFormat means the magic did not match. Probing moves on to the next format.
	ErrNotThisFormat = errors.New("not this container format")

	// ErrMalformed means the header matched but is invalid or unsupported.
	ErrMalformed = errors.New("malformed container header")

	// ErrUnknownAlgorithm means a cipher or hash name did not resolve.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrAccessDenied means no keyslot verified against the passphrase.
	ErrAccessDenied = errors.New("access denied")

	// ErrOutOfRange means a read extends past the end of a device.
	ErrOutOfRange = errors.New("out of range")

	// ErrUnknownDevice means no registered cryptodisk has the name.
	ErrUnknownDevice = errors.New("unknown cryptodisk")

	// ErrNotImplemented is returned by write paths.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotFound means no container matched the search.
	ErrNotFound = errors.New("no matching cryptodisk found")

	// ErrHandleClosed means the handle was already closed.
	ErrHandleClosed = errors.New("handle already closed")

	// ErrDeviceBusy means the cryptodisk still has open handles.
	ErrDeviceBusy = errors.New("cryptodisk is busy")

	// ErrIO wraps backing-device and transform failures.
	ErrIO = errors.New("i/o error")
)
