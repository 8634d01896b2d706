package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no hal backend exposes an adapter.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrUnknownID is returned for IDs the backend never issued or already
	// destroyed.
	ErrUnknownID = errors.New("native: unknown id")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("native: backend closed")

	// ErrNotHAL is returned by FromProvider when the provider does not
	// expose hal device and queue types.
	ErrNotHAL = errors.New("native: provider does not expose hal types")
)
