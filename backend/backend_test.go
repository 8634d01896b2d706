package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/fakegpu"
)

func registerFake(t *testing.T, name string) *int {
	t.Helper()
	opened := new(int)
	Register(name, func() (gpucore.Backend, error) {
		*opened++
		return fakegpu.New(), nil
	})
	t.Cleanup(func() { Unregister(name) })
	return opened
}

func TestRegisterAndOpen(t *testing.T) {
	opened := registerFake(t, "test-open")

	if !IsRegistered("test-open") {
		t.Fatal("IsRegistered() = false after Register")
	}
	if !slices.Contains(Available(), "test-open") {
		t.Errorf("Available() = %v, want test-open listed", Available())
	}
	b, err := Open("test-open")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()
	if b.Name() != "fakegpu" {
		t.Errorf("Name() = %q, want fakegpu", b.Name())
	}
	if *opened != 1 {
		t.Errorf("factory called %d times, want 1", *opened)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("no-such-backend"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name    string
		factory Factory
		dup     bool
	}{
		{"nil factory", nil, false},
		{"duplicate", func() (gpucore.Backend, error) { return fakegpu.New(), nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.dup {
				registerFake(t, "test-dup")
			}
			defer func() {
				if recover() == nil {
					t.Error("Register() did not panic")
				}
			}()
			Register("test-dup", tt.factory)
		})
	}
}

func TestDefaultPrefersNative(t *testing.T) {
	if IsRegistered(BackendNative) {
		t.Skip("native backend registered by another package")
	}
	registerFake(t, "zz-fallback")
	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	b.Close()

	native := registerFake(t, BackendNative)
	b, err = Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	b.Close()
	if *native != 1 {
		t.Errorf("Default() did not open %q", BackendNative)
	}
}
