package passrec

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/backend"
	"github.com/gogpu/passrec/backend/native"
	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/cache"
	"github.com/gogpu/passrec/internal/frame"
	"github.com/gogpu/passrec/internal/shaderc"
)

// Device owns a graphics backend together with everything cached on it:
// compiled shaders, buffers, textures, samplers and pipeline-state objects.
//
// A Device is not safe for concurrent use. Chains, results and the device
// itself must be used from one goroutine at a time. Invalidate is the
// exception and may be called from anywhere.
type Device struct {
	backend gpucore.Backend
	opts    deviceOptions
	log     *slog.Logger

	resources *cache.LRU[string, *cachedObject]
	shaders   *cache.LRU[string, *shaderObject]
	samplers  *cache.LRU[string, *cachedObject]

	pacer      *frame.Pacer
	upload     *stagingRing
	readback   *stagingRing
	bindGroups *frame.DescriptorRing[gpucore.BindGroupID]

	invalidations invalidateQueue
	watcher       *watcher

	depth       int
	evaluations uint64
	closed      bool
}

// cachedObject is a live backend object held by a device cache.
type cachedObject struct {
	buffer gpucore.BufferID
	size   uint64

	texture gpucore.TextureID
	view    gpucore.TextureViewID
	width   uint32
	height  uint32

	sampler gpucore.SamplerID

	pipeline gpucore.RenderPipelineID
	bindings []gpucore.BindingLayout

	release func()
}

// shaderObject is a compiled shader entry point.
type shaderObject struct {
	module     gpucore.ShaderModuleID
	entry      string
	reflection shaderc.Reflection
	release    func()
}

// stagingRing is a ring allocator over one lazily created staging buffer.
type stagingRing struct {
	ring   *frame.Ring
	buffer gpucore.BufferID
	usage  gputypes.BufferUsage
	label  string
}

type invalidateQueue struct {
	mu    sync.Mutex
	paths []string
}

// NewDevice creates a device on an open backend. The device takes ownership
// of the backend and closes it in Close.
func NewDevice(b gpucore.Backend, opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	pacer, err := frame.New(b, frame.Config{
		FrameCount: o.frameCount,
		Timeout:    o.fenceTimeout,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}

	d := &Device{
		backend:    b,
		opts:       o,
		log:        log,
		pacer:      pacer,
		bindGroups: frame.NewDescriptorRing[gpucore.BindGroupID](o.descriptorRingSize),
		upload: &stagingRing{
			ring:  frame.NewRing(o.uploadRingSize),
			usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
			label: "upload ring",
		},
		readback: &stagingRing{
			ring:  frame.NewRing(o.readbackRingSize),
			usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
			label: "readback ring",
		},
	}
	d.resources = cache.New(o.resourceCacheSize, d.evictObject)
	d.samplers = cache.New(o.samplerCacheSize, d.evictObject)
	d.shaders = cache.New(o.shaderCacheSize, d.evictShader)

	log.Info("passrec: device ready", "backend", b.Name(), "frames", pacer.FrameCount())
	return d, nil
}

// OpenDevice opens a registered backend by name and creates a device on it.
// An empty name picks the default backend.
func OpenDevice(name string, opts ...DeviceOption) (*Device, error) {
	var (
		b   gpucore.Backend
		err error
	)
	if name == "" {
		b, err = backend.Default()
	} else {
		b, err = backend.Open(name)
	}
	if err != nil {
		return nil, fmt.Errorf("passrec: open backend: %w", err)
	}
	d, err := NewDevice(b, opts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	return d, nil
}

// NewDeviceFromProvider creates a device on the HAL device and queue of a
// host application. The host keeps ownership of them.
func NewDeviceFromProvider(p gpucontext.DeviceProvider, opts ...DeviceOption) (*Device, error) {
	b, err := native.FromProvider(p)
	if err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}
	return NewDevice(b, opts...)
}

// Chain returns an empty chain that renders on d.
func (d *Device) Chain() Chain {
	return newChain(d)
}

// Backend returns the backend the device renders with.
func (d *Device) Backend() gpucore.Backend { return d.backend }

// Invalidate drops every cached object derived from the file at path: the
// file's buffers and textures, compiled shaders and the pipelines built from
// them. The eviction happens at the start of the next evaluation on the
// device's goroutine. Invalidate is safe for concurrent use.
func (d *Device) Invalidate(path string) {
	canon, err := cache.CanonicalPath(path)
	if err != nil {
		canon = path
	}
	d.invalidations.mu.Lock()
	d.invalidations.paths = append(d.invalidations.paths, canon)
	d.invalidations.mu.Unlock()
}

// drainInvalidations applies queued invalidations. It runs on the
// evaluation goroutine.
func (d *Device) drainInvalidations() {
	d.invalidations.mu.Lock()
	paths := d.invalidations.paths
	d.invalidations.paths = nil
	d.invalidations.mu.Unlock()

	for _, p := range paths {
		needle := "|" + cache.FoldKey(p) + "|"
		nres := d.resources.InvalidateFunc(func(key string) bool {
			return strings.Contains(key+"|", needle)
		})
		nsh := d.shaders.InvalidateFunc(func(key string) bool {
			return strings.HasPrefix("|"+key, needle)
		})
		d.log.Debug("passrec: invalidated", "path", p, "resources", nres, "shaders", nsh)
	}
}

// CacheStats reports one device cache.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats is a snapshot of device activity.
type Stats struct {
	Resources   CacheStats
	Shaders     CacheStats
	Samplers    CacheStats
	Submits     uint64
	Stalls      uint64
	Released    uint64
	Pending     int
	Evaluations uint64
}

func toCacheStats(s cache.Stats) CacheStats {
	return CacheStats{Len: s.Len, Capacity: s.Capacity, Hits: s.Hits, Misses: s.Misses, Evictions: s.Evictions}
}

// Stats returns cache and frame statistics.
func (d *Device) Stats() Stats {
	f := d.pacer.Stats()
	return Stats{
		Resources:   toCacheStats(d.resources.Stats()),
		Shaders:     toCacheStats(d.shaders.Stats()),
		Samplers:    toCacheStats(d.samplers.Stats()),
		Submits:     f.Submits,
		Stalls:      f.Stalls,
		Released:    f.Released,
		Pending:     f.Pending,
		Evaluations: d.evaluations,
	}
}

// Close stops the file watcher, releases every cached object, waits for the
// GPU and closes the backend. Results that were not closed lose their
// textures. Close is idempotent.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.StopWatching()

	d.resources.Clear()
	d.shaders.Clear()
	d.samplers.Clear()
	d.bindGroups.Drain(func(id gpucore.BindGroupID) {
		d.pacer.Retain(func() { d.backend.DestroyBindGroup(id) })
	})
	for _, r := range []*stagingRing{d.upload, d.readback} {
		if r.buffer != gpucore.InvalidID {
			id := r.buffer
			d.pacer.Retain(func() { d.backend.DestroyBuffer(id) })
			r.buffer = gpucore.InvalidID
		}
	}

	err := d.pacer.Close()
	d.closed = true
	if cerr := d.backend.Close(); err == nil {
		err = cerr
	}
	d.log.Info("passrec: device closed", "evaluations", d.evaluations)
	return err
}

func (d *Device) evictObject(key string, obj *cachedObject) {
	d.log.Debug("passrec: evict", "key", key)
	if obj.release != nil {
		d.pacer.Retain(obj.release)
	}
}

func (d *Device) evictShader(key string, sh *shaderObject) {
	d.log.Debug("passrec: evict shader", "key", key)
	if sh.release != nil {
		d.pacer.Retain(sh.release)
	}
}

// alloc reserves n bytes of the ring, creating its buffer on first use.
func (d *Device) alloc(r *stagingRing, n uint64) (uint64, error) {
	if r.buffer == gpucore.InvalidID {
		id, err := d.backend.CreateBuffer(&gpucore.BufferDesc{Label: r.label, Size: r.ring.Size(), Usage: r.usage})
		if err != nil {
			return 0, fmt.Errorf("passrec: create %s: %w", r.label, err)
		}
		r.buffer = id
	}
	off, err := r.ring.Alloc(n)
	if err != nil {
		return 0, fmt.Errorf("passrec: %s: %w", r.label, err)
	}
	return off, nil
}
