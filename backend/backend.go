package backend

import (
	"errors"

	"github.com/gogpu/passrec/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a backend finds no usable GPU adapter.
	ErrNoAdapter = errors.New("backend: no adapter")
)

// Factory opens a new backend instance.
type Factory func() (gpucore.Backend, error)
