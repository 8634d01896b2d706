// Package fakegpu is an in-memory gpucore.Backend for tests.
//
// Buffers and textures hold real bytes. Clears and copies behave like a GPU.
// A draw shades every pixel of the viewport with the PixelFunc registered
// under the pipeline's fragment entry point, which models a full-screen quad;
// draws with no registered function only get counted. Recorded commands run
// when their list is submitted.
package fakegpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/passrec/gpucore"
)

// ErrUnknownID is returned for IDs the fake never issued or already destroyed.
var ErrUnknownID = errors.New("fakegpu: unknown id")

// Fragment is the input to a PixelFunc.
type Fragment struct {
	X, Y          int
	Width, Height int
	// U and V are pixel-center coordinates in [0, 1].
	U, V float32

	backend *Backend
	group   *bindGroup
}

// Sample returns the texel of the texture bound at binding nearest to (u, v),
// as RGBA floats in [0, 1]. Missing bindings sample as zero.
func (f Fragment) Sample(binding uint32, u, v float32) [4]float32 {
	if f.group == nil {
		return [4]float32{}
	}
	for _, e := range f.group.entries {
		if e.Binding != binding || e.TextureView == gpucore.InvalidID {
			continue
		}
		view, ok := f.backend.views[e.TextureView]
		if !ok {
			return [4]float32{}
		}
		tex := f.backend.textures[view.texture]
		x := clampInt(int(u*float32(tex.desc.Width)), 0, int(tex.desc.Width)-1)
		y := clampInt(int(v*float32(tex.desc.Height)), 0, int(tex.desc.Height)-1)
		return tex.texel(x, y)
	}
	return [4]float32{}
}

// Uniform returns the bytes of the uniform buffer bound at binding.
func (f Fragment) Uniform(binding uint32) []byte {
	if f.group == nil {
		return nil
	}
	for _, e := range f.group.entries {
		if e.Binding != binding || e.Buffer == gpucore.InvalidID {
			continue
		}
		buf := f.backend.buffers[e.Buffer]
		end := e.Offset + e.Size
		if e.Size == 0 || end > uint64(len(buf.data)) {
			end = uint64(len(buf.data))
		}
		return buf.data[e.Offset:end]
	}
	return nil
}

// PixelFunc computes the RGBA color of one fragment.
type PixelFunc func(f Fragment) [4]float32

// DrawCall records one draw.
type DrawCall struct {
	Pipeline      gpucore.RenderPipelineID
	Indexed       bool
	Count         uint32
	InstanceCount uint32
	IndexBuffer   gpucore.BufferID
	VertexBuffers map[uint32]gpucore.BufferID
	BindGroup     gpucore.BindGroupID
}

// Backend is the fake. The zero value is not usable; call New.
type Backend struct {
	// PixelShaders maps fragment entry point names to their Go equivalent.
	PixelShaders map[string]PixelFunc

	// ManualCompletion makes Completed lag behind Submit until Complete or
	// Wait is called.
	ManualCompletion bool

	// FailPipeline makes CreateRenderPipeline fail with this error.
	FailPipeline error

	// Draws lists every executed draw.
	Draws []DrawCall

	calls map[string]int

	nextID     uint64
	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	views      map[gpucore.TextureViewID]*view
	samplers   map[gpucore.SamplerID]gputypes.SamplerDescriptor
	shaders    map[gpucore.ShaderModuleID]string
	pipelines  map[gpucore.RenderPipelineID]*gpucore.RenderPipelineDesc
	bindGroups map[gpucore.BindGroupID]*bindGroup
	lists      map[gpucore.CommandListID]*commandList

	submitted uint64
	completed uint64
	closed    bool
}

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

type texture struct {
	desc gpucore.TextureDesc
	bpp  int
	pix  []byte
}

type view struct {
	texture gpucore.TextureID
	aspect  gputypes.TextureAspect
}

type bindGroup struct {
	pipeline gpucore.RenderPipelineID
	entries  []gpucore.BindGroupEntry
}

type commandList struct {
	label     string
	recording bool
	ops       []func()
}

// New returns an empty fake backend.
func New() *Backend {
	return &Backend{
		PixelShaders: make(map[string]PixelFunc),
		calls:        make(map[string]int),
		buffers:      make(map[gpucore.BufferID]*buffer),
		textures:     make(map[gpucore.TextureID]*texture),
		views:        make(map[gpucore.TextureViewID]*view),
		samplers:     make(map[gpucore.SamplerID]gputypes.SamplerDescriptor),
		shaders:      make(map[gpucore.ShaderModuleID]string),
		pipelines:    make(map[gpucore.RenderPipelineID]*gpucore.RenderPipelineDesc),
		bindGroups:   make(map[gpucore.BindGroupID]*bindGroup),
		lists:        make(map[gpucore.CommandListID]*commandList),
	}
}

var _ gpucore.Backend = (*Backend)(nil)

// Calls returns how many times method was called.
func (b *Backend) Calls(method string) int { return b.calls[method] }

// TotalCalls returns the number of backend calls of any kind.
func (b *Backend) TotalCalls() int {
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// Live returns the number of live resources of every kind except command lists.
func (b *Backend) Live() int {
	return len(b.buffers) + len(b.textures) + len(b.views) + len(b.samplers) +
		len(b.shaders) + len(b.pipelines) + len(b.bindGroups)
}

// LiveBuffers returns the number of live buffers.
func (b *Backend) LiveBuffers() int { return len(b.buffers) }

// LiveTextures returns the number of live textures.
func (b *Backend) LiveTextures() int { return len(b.textures) }

// LiveShaders returns the number of live shader modules.
func (b *Backend) LiveShaders() int { return len(b.shaders) }

// LivePipelines returns the number of live pipelines.
func (b *Backend) LivePipelines() int { return len(b.pipelines) }

// Pipeline returns the descriptor a live pipeline was created with.
func (b *Backend) Pipeline(id gpucore.RenderPipelineID) (*gpucore.RenderPipelineDesc, bool) {
	d, ok := b.pipelines[id]
	return d, ok
}

// BufferData returns the contents of a live buffer.
func (b *Backend) BufferData(id gpucore.BufferID) ([]byte, bool) {
	buf, ok := b.buffers[id]
	if !ok {
		return nil, false
	}
	return buf.data, true
}

// Submitted returns the last fence value handed out by Submit.
func (b *Backend) Submitted() uint64 { return b.submitted }

// Complete marks every submission up to value as finished.
func (b *Backend) Complete(value uint64) {
	if value > b.submitted {
		value = b.submitted
	}
	if value > b.completed {
		b.completed = value
	}
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool { return b.closed }

func (b *Backend) id(method string) uint64 {
	b.calls[method]++
	b.nextID++
	return b.nextID
}

func (b *Backend) count(method string) { b.calls[method]++ }

// ResourceFactory

func (b *Backend) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		b.count("CreateBuffer")
		return gpucore.InvalidID, errors.New("fakegpu: zero-size buffer")
	}
	id := gpucore.BufferID(b.id("CreateBuffer"))
	b.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

func (b *Backend) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b.count("WriteBuffer")
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownID, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("fakegpu: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

func (b *Backend) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	b.count("ReadBuffer")
	buf, ok := b.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownID, id)
	}
	if offset+size > uint64(len(buf.data)) {
		return nil, fmt.Errorf("fakegpu: read of %d bytes at %d overflows buffer of %d", size, offset, len(buf.data))
	}
	return slices.Clone(buf.data[offset : offset+size]), nil
}

func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.count("DestroyBuffer")
	delete(b.buffers, id)
}

func (b *Backend) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	bpp := int(gpucore.BytesPerPixel(desc.Format))
	if bpp == 0 || desc.Width == 0 || desc.Height == 0 {
		b.count("CreateTexture")
		return gpucore.InvalidID, fmt.Errorf("fakegpu: unsupported texture %dx%d %v", desc.Width, desc.Height, desc.Format)
	}
	id := gpucore.TextureID(b.id("CreateTexture"))
	b.textures[id] = &texture{
		desc: *desc,
		bpp:  bpp,
		pix:  make([]byte, int(desc.Width)*int(desc.Height)*bpp),
	}
	return id, nil
}

func (b *Backend) DestroyTexture(id gpucore.TextureID) {
	b.count("DestroyTexture")
	delete(b.textures, id)
}

func (b *Backend) CreateTextureView(tex gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	if _, ok := b.textures[tex]; !ok {
		b.count("CreateTextureView")
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrUnknownID, tex)
	}
	id := gpucore.TextureViewID(b.id("CreateTextureView"))
	b.views[id] = &view{texture: tex, aspect: desc.Aspect}
	return id, nil
}

func (b *Backend) DestroyTextureView(id gpucore.TextureViewID) {
	b.count("DestroyTextureView")
	delete(b.views, id)
}

func (b *Backend) CreateSampler(desc *gputypes.SamplerDescriptor) (gpucore.SamplerID, error) {
	id := gpucore.SamplerID(b.id("CreateSampler"))
	b.samplers[id] = *desc
	return id, nil
}

func (b *Backend) DestroySampler(id gpucore.SamplerID) {
	b.count("DestroySampler")
	delete(b.samplers, id)
}

func (b *Backend) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if len(desc.SPIRV) == 0 && desc.WGSL == "" {
		b.count("CreateShaderModule")
		return gpucore.InvalidID, errors.New("fakegpu: empty shader module")
	}
	id := gpucore.ShaderModuleID(b.id("CreateShaderModule"))
	b.shaders[id] = desc.Label
	return id, nil
}

func (b *Backend) DestroyShaderModule(id gpucore.ShaderModuleID) {
	b.count("DestroyShaderModule")
	delete(b.shaders, id)
}

func (b *Backend) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if b.FailPipeline != nil {
		b.count("CreateRenderPipeline")
		return gpucore.InvalidID, b.FailPipeline
	}
	if _, ok := b.shaders[desc.VertexModule]; !ok {
		b.count("CreateRenderPipeline")
		return gpucore.InvalidID, fmt.Errorf("%w: vertex module %d", ErrUnknownID, desc.VertexModule)
	}
	if _, ok := b.shaders[desc.FragmentModule]; !ok {
		b.count("CreateRenderPipeline")
		return gpucore.InvalidID, fmt.Errorf("%w: fragment module %d", ErrUnknownID, desc.FragmentModule)
	}
	id := gpucore.RenderPipelineID(b.id("CreateRenderPipeline"))
	d := *desc
	b.pipelines[id] = &d
	return id, nil
}

func (b *Backend) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	b.count("DestroyRenderPipeline")
	delete(b.pipelines, id)
}

func (b *Backend) CreateBindGroup(pipeline gpucore.RenderPipelineID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	if _, ok := b.pipelines[pipeline]; !ok {
		b.count("CreateBindGroup")
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %d", ErrUnknownID, pipeline)
	}
	id := gpucore.BindGroupID(b.id("CreateBindGroup"))
	b.bindGroups[id] = &bindGroup{pipeline: pipeline, entries: slices.Clone(entries)}
	return id, nil
}

func (b *Backend) DestroyBindGroup(id gpucore.BindGroupID) {
	b.count("DestroyBindGroup")
	delete(b.bindGroups, id)
}

// CommandQueue

func (b *Backend) CreateCommandList(label string) (gpucore.CommandListID, error) {
	id := gpucore.CommandListID(b.id("CreateCommandList"))
	b.lists[id] = &commandList{label: label}
	return id, nil
}

func (b *Backend) DestroyCommandList(id gpucore.CommandListID) {
	b.count("DestroyCommandList")
	delete(b.lists, id)
}

func (b *Backend) ResetCommandList(id gpucore.CommandListID) error {
	b.count("ResetCommandList")
	l, ok := b.lists[id]
	if !ok {
		return fmt.Errorf("%w: command list %d", ErrUnknownID, id)
	}
	l.recording = false
	l.ops = nil
	return nil
}

func (b *Backend) Encoder(id gpucore.CommandListID) (gpucore.Encoder, error) {
	b.count("Encoder")
	l, ok := b.lists[id]
	if !ok {
		return nil, fmt.Errorf("%w: command list %d", ErrUnknownID, id)
	}
	l.recording = true
	return &encoder{b: b, list: l}, nil
}

func (b *Backend) Submit(id gpucore.CommandListID) (uint64, error) {
	b.count("Submit")
	l, ok := b.lists[id]
	if !ok {
		return 0, fmt.Errorf("%w: command list %d", ErrUnknownID, id)
	}
	for _, op := range l.ops {
		op()
	}
	l.ops = nil
	l.recording = false
	b.submitted++
	if !b.ManualCompletion {
		b.completed = b.submitted
	}
	return b.submitted, nil
}

func (b *Backend) Completed() uint64 { return b.completed }

func (b *Backend) Wait(value uint64, _ time.Duration) (bool, error) {
	b.count("Wait")
	if value > b.submitted {
		return false, nil
	}
	b.Complete(value)
	return true, nil
}

func (b *Backend) WaitIdle() error {
	b.count("WaitIdle")
	b.completed = b.submitted
	return nil
}

func (b *Backend) Name() string { return "fakegpu" }

func (b *Backend) Close() error {
	b.count("Close")
	b.closed = true
	return nil
}

// Textures

func (t *texture) texel(x, y int) [4]float32 {
	off := (y*int(t.desc.Width) + x) * t.bpp
	p := t.pix[off : off+t.bpp]
	switch t.desc.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return [4]float32{unorm(p[0]), unorm(p[1]), unorm(p[2]), unorm(p[3])}
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return [4]float32{unorm(p[2]), unorm(p[1]), unorm(p[0]), unorm(p[3])}
	case gputypes.TextureFormatR8Unorm:
		return [4]float32{unorm(p[0]), 0, 0, 1}
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		v := math.Float32frombits(binary.LittleEndian.Uint32(p))
		return [4]float32{v, 0, 0, 1}
	default:
		return [4]float32{}
	}
}

func (t *texture) store(x, y int, c [4]float32) {
	off := (y*int(t.desc.Width) + x) * t.bpp
	p := t.pix[off : off+t.bpp]
	switch t.desc.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		p[0], p[1], p[2], p[3] = toUnorm(c[0]), toUnorm(c[1]), toUnorm(c[2]), toUnorm(c[3])
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		p[0], p[1], p[2], p[3] = toUnorm(c[2]), toUnorm(c[1]), toUnorm(c[0]), toUnorm(c[3])
	case gputypes.TextureFormatR8Unorm:
		p[0] = toUnorm(c[0])
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		binary.LittleEndian.PutUint32(p, math.Float32bits(c[0]))
	case gputypes.TextureFormatDepth16Unorm:
		binary.LittleEndian.PutUint16(p, uint16(clamp01(c[0])*65535+0.5))
	case gputypes.TextureFormatRGBA32Float:
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(c[i]))
		}
	}
}

func (t *texture) fill(c [4]float32) {
	for y := 0; y < int(t.desc.Height); y++ {
		for x := 0; x < int(t.desc.Width); x++ {
			t.store(x, y, c)
		}
	}
}

// Encoder

type encoder struct {
	b    *Backend
	list *commandList
}

func (e *encoder) record(op func()) { e.list.ops = append(e.list.ops, op) }

func (e *encoder) CopyBufferToTexture(src gpucore.BufferID, layout gpucore.ImageLayout, dst gpucore.TextureID, width, height uint32) {
	e.b.count("CopyBufferToTexture")
	e.record(func() {
		buf, tex := e.b.buffers[src], e.b.textures[dst]
		if buf == nil || tex == nil {
			return
		}
		row := int(width) * tex.bpp
		for y := 0; y < int(height); y++ {
			from := int(layout.Offset) + y*int(layout.BytesPerRow)
			to := y * int(tex.desc.Width) * tex.bpp
			copy(tex.pix[to:to+row], buf.data[from:from+row])
		}
	})
}

func (e *encoder) CopyTextureToBuffer(src gpucore.TextureID, _ gputypes.TextureAspect, dst gpucore.BufferID, layout gpucore.ImageLayout, width, height uint32) {
	e.b.count("CopyTextureToBuffer")
	e.record(func() {
		tex, buf := e.b.textures[src], e.b.buffers[dst]
		if buf == nil || tex == nil {
			return
		}
		row := int(width) * tex.bpp
		for y := 0; y < int(height); y++ {
			from := y * int(tex.desc.Width) * tex.bpp
			to := int(layout.Offset) + y*int(layout.BytesPerRow)
			copy(buf.data[to:to+row], tex.pix[from:from+row])
		}
	})
}

func (e *encoder) PrepareSampled([]gpucore.TextureID) {
	e.b.count("PrepareSampled")
}

func (e *encoder) BeginRenderPass(desc *gpucore.RenderPassDesc) gpucore.RenderPass {
	e.b.count("BeginRenderPass")
	d := *desc
	d.Color = slices.Clone(desc.Color)
	e.record(func() {
		for _, c := range d.Color {
			if v, ok := e.b.views[c.View]; ok {
				e.b.textures[v.texture].fill([4]float32{float32(c.Clear.R), float32(c.Clear.G), float32(c.Clear.B), float32(c.Clear.A)})
			}
		}
		if d.Depth != nil {
			if v, ok := e.b.views[d.Depth.View]; ok {
				e.b.textures[v.texture].fill([4]float32{d.Depth.DepthClear})
			}
		}
	})
	return &renderPass{enc: e, desc: d, vertex: map[uint32]gpucore.BufferID{}}
}

type renderPass struct {
	enc      *encoder
	desc     gpucore.RenderPassDesc
	pipeline gpucore.RenderPipelineID
	group    gpucore.BindGroupID
	index    gpucore.BufferID
	vertex   map[uint32]gpucore.BufferID
}

func (p *renderPass) SetPipeline(pipeline gpucore.RenderPipelineID) {
	p.enc.b.count("SetPipeline")
	p.pipeline = pipeline
}

func (p *renderPass) SetBindGroup(_ uint32, group gpucore.BindGroupID) {
	p.enc.b.count("SetBindGroup")
	p.group = group
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpucore.BufferID, _ uint64) {
	p.enc.b.count("SetVertexBuffer")
	p.vertex[slot] = buf
}

func (p *renderPass) SetIndexBuffer(buf gpucore.BufferID, _ gputypes.IndexFormat, _ uint64) {
	p.enc.b.count("SetIndexBuffer")
	p.index = buf
}

func (p *renderPass) SetViewport(_, _, _, _, _, _ float32) {
	p.enc.b.count("SetViewport")
}

func (p *renderPass) Draw(vertexCount, instanceCount, _, _ uint32) {
	p.enc.b.count("Draw")
	p.draw(DrawCall{Count: vertexCount, InstanceCount: instanceCount})
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, _ uint32, _ int32, _ uint32) {
	p.enc.b.count("DrawIndexed")
	p.draw(DrawCall{Indexed: true, Count: indexCount, InstanceCount: instanceCount, IndexBuffer: p.index})
}

func (p *renderPass) End() {
	p.enc.b.count("EndRenderPass")
}

func (p *renderPass) draw(call DrawCall) {
	call.Pipeline = p.pipeline
	call.BindGroup = p.group
	call.VertexBuffers = make(map[uint32]gpucore.BufferID, len(p.vertex))
	for k, v := range p.vertex {
		call.VertexBuffers[k] = v
	}
	targets := slices.Clone(p.desc.Color)
	b := p.enc.b
	p.enc.record(func() {
		b.Draws = append(b.Draws, call)
		pl, ok := b.pipelines[call.Pipeline]
		if !ok {
			return
		}
		fn := b.PixelShaders[pl.FragmentEntry]
		if fn == nil {
			return
		}
		group := b.bindGroups[call.BindGroup]
		for _, c := range targets {
			v, ok := b.views[c.View]
			if !ok {
				continue
			}
			tex := b.textures[v.texture]
			w, h := int(tex.desc.Width), int(tex.desc.Height)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					tex.store(x, y, fn(Fragment{
						X: x, Y: y, Width: w, Height: h,
						U:       (float32(x) + 0.5) / float32(w),
						V:       (float32(y) + 0.5) / float32(h),
						backend: b,
						group:   group,
					}))
				}
			}
		}
	})
}

func unorm(v byte) float32 { return float32(v) / 255 }

func toUnorm(v float32) byte { return byte(clamp01(v)*255 + 0.5) }

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
