package passrec

import (
	"log/slog"
	"time"

	"github.com/gogpu/passrec/internal/frame"
)

// Defaults for device configuration.
const (
	DefaultResourceCacheSize  = 512
	DefaultShaderCacheSize    = 256
	DefaultSamplerCacheSize   = 64
	DefaultRingSize           = 64 << 20
	DefaultDescriptorRingSize = 4096
	DefaultCacheDir           = ".cache"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := passrec.OpenDevice("native",
//	    passrec.WithFrameCount(2),
//	    passrec.WithShaderCacheSize(64),
//	)
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	resourceCacheSize  int
	shaderCacheSize    int
	samplerCacheSize   int
	frameCount         int
	fenceTimeout       time.Duration
	uploadRingSize     uint64
	readbackRingSize   uint64
	descriptorRingSize int
	cacheDir           string
	logger             *slog.Logger
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		resourceCacheSize:  DefaultResourceCacheSize,
		shaderCacheSize:    DefaultShaderCacheSize,
		samplerCacheSize:   DefaultSamplerCacheSize,
		frameCount:         frame.DefaultFrameCount,
		fenceTimeout:       frame.DefaultTimeout,
		uploadRingSize:     DefaultRingSize,
		readbackRingSize:   DefaultRingSize,
		descriptorRingSize: DefaultDescriptorRingSize,
		cacheDir:           DefaultCacheDir,
	}
}

// WithResourceCacheSize bounds the number of cached buffers, textures and
// pipeline-state objects.
func WithResourceCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) { o.resourceCacheSize = n }
}

// WithShaderCacheSize bounds the number of cached compiled shaders.
func WithShaderCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) { o.shaderCacheSize = n }
}

// WithSamplerCacheSize bounds the number of cached samplers.
func WithSamplerCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) { o.samplerCacheSize = n }
}

// WithFrameCount sets how many command lists may be in flight. It must be
// at least 2.
func WithFrameCount(n int) DeviceOption {
	return func(o *deviceOptions) { o.frameCount = n }
}

// WithFenceTimeout bounds every wait for the GPU.
func WithFenceTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) { o.fenceTimeout = d }
}

// WithUploadRingSize sets the size in bytes of the staging buffer used for
// texture uploads. No single image may exceed it.
func WithUploadRingSize(n uint64) DeviceOption {
	return func(o *deviceOptions) { o.uploadRingSize = n }
}

// WithReadbackRingSize sets the size in bytes of the staging buffer used to
// read rendered pixels back.
func WithReadbackRingSize(n uint64) DeviceOption {
	return func(o *deviceOptions) { o.readbackRingSize = n }
}

// WithDescriptorRingSize sets how many bind groups are kept alive before
// the oldest is recycled.
func WithDescriptorRingSize(n int) DeviceOption {
	return func(o *deviceOptions) { o.descriptorRingSize = n }
}

// WithCacheDir sets the directory HTML previews are written under.
func WithCacheDir(dir string) DeviceOption {
	return func(o *deviceOptions) { o.cacheDir = dir }
}

// WithLogger sets the device logger, overriding the package logger.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) { o.logger = l }
}
