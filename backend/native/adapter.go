package native

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Backend implements gpucore.Backend over a hal device and queue.
//
// Thread Safety: resource maps are guarded by a mutex, so creation and
// destruction may happen from any goroutine. Recording into one command list
// must stay on one goroutine.
type Backend struct {
	mu     sync.RWMutex
	name   string
	device hal.Device
	queue  hal.Queue

	// instance is nil when the device belongs to a host application.
	instance hal.Instance
	owned    bool
	closed   bool

	nextID uint64

	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	views      map[gpucore.TextureViewID]*textureView
	samplers   map[gpucore.SamplerID]hal.Sampler
	shaders    map[gpucore.ShaderModuleID]hal.ShaderModule
	pipelines  map[gpucore.RenderPipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]hal.BindGroup
	lists      map[gpucore.CommandListID]*commandList
}

type buffer struct {
	raw  hal.Buffer
	size uint64
}

type texture struct {
	raw  hal.Texture
	desc gpucore.TextureDesc
	// state is the usage the texture was last transitioned to.
	state gputypes.TextureUsage
}

type textureView struct {
	raw     hal.TextureView
	texture gpucore.TextureID
}

type pipeline struct {
	raw         hal.RenderPipeline
	layout      hal.PipelineLayout
	groupLayout hal.BindGroupLayout
}

// New wraps an open hal device and queue. The backend does not destroy them
// on Close; use [Open] for a device the backend owns.
func New(device hal.Device, queue hal.Queue, name string) *Backend {
	return &Backend{
		name:       name,
		device:     device,
		queue:      queue,
		buffers:    make(map[gpucore.BufferID]*buffer),
		textures:   make(map[gpucore.TextureID]*texture),
		views:      make(map[gpucore.TextureViewID]*textureView),
		samplers:   make(map[gpucore.SamplerID]hal.Sampler),
		shaders:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		pipelines:  make(map[gpucore.RenderPipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]hal.BindGroup),
		lists:      make(map[gpucore.CommandListID]*commandList),
	}
}

// Name returns the hal backend and adapter name.
func (b *Backend) Name() string { return b.name }

// Device returns the underlying hal device.
func (b *Backend) Device() hal.Device { return b.device }

// Queue returns the underlying hal queue.
func (b *Backend) Queue() hal.Queue { return b.queue }

// Close waits for the GPU, destroys resources that are still alive and, if
// the backend owns the device, destroys the device and instance.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.device.WaitIdle()
	for id, l := range b.lists {
		l.destroy(b.device)
		delete(b.lists, id)
	}
	for id, g := range b.bindGroups {
		b.device.DestroyBindGroup(g)
		delete(b.bindGroups, id)
	}
	for id, p := range b.pipelines {
		p.destroy(b.device)
		delete(b.pipelines, id)
	}
	for id, m := range b.shaders {
		b.device.DestroyShaderModule(m)
		delete(b.shaders, id)
	}
	for id, s := range b.samplers {
		b.device.DestroySampler(s)
		delete(b.samplers, id)
	}
	for id, v := range b.views {
		b.device.DestroyTextureView(v.raw)
		delete(b.views, id)
	}
	for id, t := range b.textures {
		b.device.DestroyTexture(t.raw)
		delete(b.textures, id)
	}
	for id, buf := range b.buffers {
		b.device.DestroyBuffer(buf.raw)
		delete(b.buffers, id)
	}

	if b.owned {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	if err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	return nil
}

func (b *Backend) id() uint64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) checkOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Buffers

func (b *Backend) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	id := gpucore.BufferID(b.id())
	b.buffers[id] = &buffer{raw: raw, size: desc.Size}
	return id, nil
}

func (b *Backend) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b.mu.RLock()
	buf, ok := b.buffers[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownID, id)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("native: write of %d bytes at %d overflows buffer of %d", len(data), offset, buf.size)
	}
	if err := b.queue.WriteBuffer(buf.raw, offset, data); err != nil {
		return fmt.Errorf("native: write buffer: %w", err)
	}
	return nil
}

func (b *Backend) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	b.mu.RLock()
	buf, ok := b.buffers[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownID, id)
	}
	if offset+size > buf.size {
		return nil, fmt.Errorf("native: read of %d bytes at %d overflows buffer of %d", size, offset, buf.size)
	}
	if size == 0 {
		return []byte{}, nil
	}
	mapping, err := b.device.MapBuffer(buf.raw, offset, size)
	if err != nil {
		return nil, fmt.Errorf("native: map buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := b.device.UnmapBuffer(buf.raw); err != nil {
		return nil, fmt.Errorf("native: unmap buffer: %w", err)
	}
	return out, nil
}

func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[id]; ok {
		b.device.DestroyBuffer(buf.raw)
		delete(b.buffers, id)
	}
}

// Textures

func (b *Backend) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %q has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	id := gpucore.TextureID(b.id())
	b.textures[id] = &texture{raw: raw, desc: *desc}
	return id, nil
}

func (b *Backend) DestroyTexture(id gpucore.TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.textures[id]; ok {
		b.device.DestroyTexture(t.raw)
		delete(b.textures, id)
	}
}

func (b *Backend) CreateTextureView(tex gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	t, ok := b.textures[tex]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrUnknownID, tex)
	}
	raw, err := b.device.CreateTextureView(t.raw, viewDescriptor(t.desc, desc))
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create view of %q: %w", t.desc.Label, err)
	}
	id := gpucore.TextureViewID(b.id())
	b.views[id] = &textureView{raw: raw, texture: tex}
	return id, nil
}

func (b *Backend) DestroyTextureView(id gpucore.TextureViewID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.views[id]; ok {
		b.device.DestroyTextureView(v.raw)
		delete(b.views, id)
	}
}

// Samplers and shaders

func (b *Backend) CreateSampler(desc *gputypes.SamplerDescriptor) (gpucore.SamplerID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	raw, err := b.device.CreateSampler(samplerDescriptor(desc))
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler: %w", err)
	}
	id := gpucore.SamplerID(b.id())
	b.samplers[id] = raw
	return id, nil
}

func (b *Backend) DestroySampler(id gpucore.SamplerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.samplers[id]; ok {
		b.device.DestroySampler(s)
		delete(b.samplers, id)
	}
}

func (b *Backend) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	raw, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.WGSL, SPIRV: desc.SPIRV},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %q: %w", desc.Label, err)
	}
	id := gpucore.ShaderModuleID(b.id())
	b.shaders[id] = raw
	return id, nil
}

func (b *Backend) DestroyShaderModule(id gpucore.ShaderModuleID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.shaders[id]; ok {
		b.device.DestroyShaderModule(m)
		delete(b.shaders, id)
	}
}

// Pipelines and bind groups

func (b *Backend) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	vs, ok := b.shaders[desc.VertexModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: vertex module %d", ErrUnknownID, desc.VertexModule)
	}
	fs, ok := b.shaders[desc.FragmentModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: fragment module %d", ErrUnknownID, desc.FragmentModule)
	}

	p := &pipeline{}
	var err error
	p.groupLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + " group 0",
		Entries: layoutEntries(desc.Bindings),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout: %w", err)
	}
	p.layout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + " layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.groupLayout},
	})
	if err != nil {
		p.destroy(b.device)
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout: %w", err)
	}
	p.raw, err = b.device.CreateRenderPipeline(pipelineDescriptor(desc, p.layout, vs, fs))
	if err != nil {
		p.destroy(b.device)
		return gpucore.InvalidID, fmt.Errorf("native: create render pipeline %q: %w", desc.Label, err)
	}
	id := gpucore.RenderPipelineID(b.id())
	b.pipelines[id] = p
	return id, nil
}

func (b *Backend) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[id]; ok {
		p.destroy(b.device)
		delete(b.pipelines, id)
	}
}

func (p *pipeline) destroy(device hal.Device) {
	if p.raw != nil {
		device.DestroyRenderPipeline(p.raw)
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
	}
	if p.groupLayout != nil {
		device.DestroyBindGroupLayout(p.groupLayout)
	}
}

func (b *Backend) CreateBindGroup(pl gpucore.RenderPipelineID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	p, ok := b.pipelines[pl]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %d", ErrUnknownID, pl)
	}
	halEntries := make([]gputypes.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		res, err := b.bindingResource(e)
		if err != nil {
			return gpucore.InvalidID, err
		}
		halEntries = append(halEntries, gputypes.BindGroupEntry{Binding: e.Binding, Resource: res})
	}
	raw, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "group 0",
		Layout:  p.groupLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group: %w", err)
	}
	id := gpucore.BindGroupID(b.id())
	b.bindGroups[id] = raw
	return id, nil
}

// bindingResource resolves one entry to its native handle. Caller holds mu.
func (b *Backend) bindingResource(e gpucore.BindGroupEntry) (gputypes.BindingResource, error) {
	switch {
	case e.Buffer != gpucore.InvalidID:
		buf, ok := b.buffers[e.Buffer]
		if !ok {
			return nil, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownID, e.Buffer, e.Binding)
		}
		return gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Offset: e.Offset, Size: e.Size}, nil
	case e.TextureView != gpucore.InvalidID:
		v, ok := b.views[e.TextureView]
		if !ok {
			return nil, fmt.Errorf("%w: texture view %d at binding %d", ErrUnknownID, e.TextureView, e.Binding)
		}
		return gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()}, nil
	case e.Sampler != gpucore.InvalidID:
		s, ok := b.samplers[e.Sampler]
		if !ok {
			return nil, fmt.Errorf("%w: sampler %d at binding %d", ErrUnknownID, e.Sampler, e.Binding)
		}
		return gputypes.SamplerBinding{Sampler: s.NativeHandle()}, nil
	default:
		return nil, fmt.Errorf("native: binding %d has no resource", e.Binding)
	}
}

func (b *Backend) DestroyBindGroup(id gpucore.BindGroupID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.bindGroups[id]; ok {
		b.device.DestroyBindGroup(g)
		delete(b.bindGroups, id)
	}
}

var _ gpucore.Backend = (*Backend)(nil)
