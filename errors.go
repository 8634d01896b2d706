package passrec

import (
	"errors"
	"fmt"

	"github.com/gogpu/passrec/internal/frame"
)

var (
	// ErrConfiguration reports a malformed chain, such as a draw without a
	// bound shader. It aborts the evaluation it occurs in.
	ErrConfiguration = errors.New("passrec: invalid chain")

	// ErrCompilation reports a shader that failed to compile. The failure is
	// not cached; the next evaluation compiles again.
	ErrCompilation = errors.New("passrec: shader compilation failed")

	// ErrResourceExhausted reports a single upload or readback larger than
	// its staging ring.
	ErrResourceExhausted = frame.ErrRingOverflow

	// ErrSyncTimeout reports a fence wait that never completed. The device is
	// most likely lost.
	ErrSyncTimeout = frame.ErrSyncTimeout

	// ErrDisposed is returned by PassResult accessors after Close.
	ErrDisposed = errors.New("passrec: pass result closed")

	// ErrDeviceClosed is returned when a closed device is used.
	ErrDeviceClosed = errors.New("passrec: device closed")
)

// CompileError describes a shader compilation failure.
// It matches both ErrCompilation and the underlying compiler error.
type CompileError struct {
	// Path is the shader file, or the content key of inline source.
	Path  string
	Entry string
	Stage string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("passrec: compile %s shader %s (entry %q): %v", e.Stage, e.Path, e.Entry, e.Err)
}

func (e *CompileError) Unwrap() []error {
	return []error{ErrCompilation, e.Err}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}
