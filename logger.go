package passrec

import (
	"log/slog"
	"sync/atomic"
)

// silent discards every record. Its handler reports every level disabled,
// so log calls cost only the Enabled check.
var silent = slog.New(slog.DiscardHandler)

// pkgLogger is what a Device logs to unless WithLogger overrides it. It is
// read once, when the device is created.
var pkgLogger atomic.Pointer[slog.Logger]

func init() {
	pkgLogger.Store(silent)
}

// SetLogger sets the logger of devices created afterwards. passrec is
// silent by default; nil makes it silent again.
//
// Levels:
//   - [slog.LevelDebug]: shader compiles, image uploads, rendered passes,
//     cache evictions and invalidations, frame pacer stalls and releases
//   - [slog.LevelInfo]: device ready and closed
//   - [slog.LevelWarn]: file watcher errors, failed discards
//
// Example:
//
//	passrec.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	pkgLogger.Store(l)
}

// Logger returns the package logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return pkgLogger.Load()
}
