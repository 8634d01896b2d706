package passrec

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/passrec/internal/fakegpu"
)

// captureLogger sets a debug text logger for the test and returns its output.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestLoggerSilence(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	tests := []struct {
		name  string
		setup func()
	}{
		{"default", func() {}},
		{"nil after custom", func() {
			SetLogger(slog.Default())
			SetLogger(nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogger(orig)
			tt.setup()
			l := Logger()
			if l == nil {
				t.Fatal("Logger() = nil")
			}
			if l.Enabled(context.Background(), slog.LevelError) {
				t.Error("Logger() is enabled at error level, want silent")
			}
		})
	}
}

func TestDeviceLogRecords(t *testing.T) {
	buf := captureLogger(t)
	dev, err := NewDevice(fakegpu.New())
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	c := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_red")).
		WithVertexBuffer(0, 8, quadCorners).
		WithDraw(3, 1, 0, 0)
	r := c.Execute()
	if err := r.CheckRender(); err != nil {
		t.Fatalf("CheckRender() = %v", err)
	}
	r.Close()
	dev.Close()

	for _, msg := range []string{"device ready", "shader compiled", "pass rendered", "device closed"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("log output has no %q record:\n%s", msg, buf.String())
		}
	}
}

func TestWithLoggerOverridesPackageLogger(t *testing.T) {
	pkg := captureLogger(t)
	var own bytes.Buffer

	dev, err := NewDevice(fakegpu.New(), WithLogger(slog.New(slog.NewTextHandler(&own, nil))))
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	// Later package changes do not reach an existing device.
	SetLogger(nil)
	dev.Close()

	if pkg.Len() != 0 {
		t.Errorf("package logger got output: %s", pkg.String())
	}
	if !strings.Contains(own.String(), "device closed") {
		t.Errorf("WithLogger output = %q, want a device closed record", own.String())
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Logger().Debug("concurrent read")
		}()
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}
	wg.Wait()
}
