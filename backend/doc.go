// Package backend is the registry of graphics backends.
//
// Backends register a [Factory] under a name from an init() function, in the
// manner of database/sql drivers:
//
//	import _ "github.com/gogpu/passrec/backend/native"
//
// and are opened by name or by priority:
//
//	b, err := backend.Open(backend.BackendNative)
//	// or
//	b, err := backend.Default()
//
// The opened value implements [gpucore.Backend].
package backend
