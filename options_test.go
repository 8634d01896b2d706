package passrec

import (
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/passrec/internal/frame"
)

func TestDefaultDeviceOptions(t *testing.T) {
	o := defaultDeviceOptions()
	if o.resourceCacheSize != DefaultResourceCacheSize {
		t.Errorf("resourceCacheSize = %d, want %d", o.resourceCacheSize, DefaultResourceCacheSize)
	}
	if o.frameCount != frame.DefaultFrameCount {
		t.Errorf("frameCount = %d, want %d", o.frameCount, frame.DefaultFrameCount)
	}
	if o.fenceTimeout != frame.DefaultTimeout {
		t.Errorf("fenceTimeout = %v, want %v", o.fenceTimeout, frame.DefaultTimeout)
	}
	if o.cacheDir != DefaultCacheDir {
		t.Errorf("cacheDir = %q, want %q", o.cacheDir, DefaultCacheDir)
	}
	if o.logger != nil {
		t.Error("logger set by default, want nil (package logger)")
	}
}

func TestDeviceOptionFuncs(t *testing.T) {
	l := slog.New(slog.DiscardHandler)
	tests := []struct {
		name  string
		opt   DeviceOption
		check func(o deviceOptions) bool
	}{
		{"WithResourceCacheSize", WithResourceCacheSize(3), func(o deviceOptions) bool { return o.resourceCacheSize == 3 }},
		{"WithShaderCacheSize", WithShaderCacheSize(4), func(o deviceOptions) bool { return o.shaderCacheSize == 4 }},
		{"WithSamplerCacheSize", WithSamplerCacheSize(5), func(o deviceOptions) bool { return o.samplerCacheSize == 5 }},
		{"WithFrameCount", WithFrameCount(4), func(o deviceOptions) bool { return o.frameCount == 4 }},
		{"WithFenceTimeout", WithFenceTimeout(time.Minute), func(o deviceOptions) bool { return o.fenceTimeout == time.Minute }},
		{"WithUploadRingSize", WithUploadRingSize(1 << 10), func(o deviceOptions) bool { return o.uploadRingSize == 1<<10 }},
		{"WithReadbackRingSize", WithReadbackRingSize(1 << 11), func(o deviceOptions) bool { return o.readbackRingSize == 1<<11 }},
		{"WithDescriptorRingSize", WithDescriptorRingSize(6), func(o deviceOptions) bool { return o.descriptorRingSize == 6 }},
		{"WithCacheDir", WithCacheDir("out"), func(o deviceOptions) bool { return o.cacheDir == "out" }},
		{"WithLogger", WithLogger(l), func(o deviceOptions) bool { return o.logger == l }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultDeviceOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("%s did not apply: %+v", tt.name, o)
			}
		})
	}
}
