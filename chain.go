package passrec

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// Default output configuration of a new chain.
const (
	DefaultWidth  = 256
	DefaultHeight = 256
)

// node is one immutable step of a chain. Chains share nodes freely.
type node struct {
	prev    *node
	payload Action
	slot    *ParameterSlot
}

// Chain is an immutable render recipe. Every With method returns a new
// Chain that shares all earlier steps with the receiver, so a base chain can
// be extended in several directions without copying or interference.
//
// The zero Chain has no device; get one from Device.Chain.
type Chain struct {
	head    *node
	dev     *Device
	width   uint32
	height  uint32
	formats []gputypes.TextureFormat
	depth   gputypes.TextureFormat
	clear   gputypes.Color
	label   string
}

func newChain(d *Device) Chain {
	return Chain{
		dev:     d,
		width:   DefaultWidth,
		height:  DefaultHeight,
		formats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	}
}

func (c Chain) push(payload Action, slot *ParameterSlot, opts []SlotOption) Chain {
	if slot == nil {
		slot = valueSlot(payload)
	}
	c.head = &node{prev: c.head, payload: payload, slot: slot.apply(opts)}
	return c
}

// Len returns the number of nodes in the chain.
func (c Chain) Len() int {
	n := 0
	for p := c.head; p != nil; p = p.prev {
		n++
	}
	return n
}

// nodes returns the chain in execution order.
func (c Chain) nodes() []*node {
	var out []*node
	for p := c.head; p != nil; p = p.prev {
		out = append(out, p)
	}
	slices.Reverse(out)
	return out
}

// Device returns the device the chain renders on.
func (c Chain) Device() *Device { return c.dev }

// Size returns the output size.
func (c Chain) Size() (width, height uint32) { return c.width, c.height }

// Formats returns the color target formats.
func (c Chain) Formats() []gputypes.TextureFormat { return slices.Clone(c.formats) }

// DepthFormat returns the depth target format, TextureFormatUndefined when
// the chain has no depth target.
func (c Chain) DepthFormat() gputypes.TextureFormat { return c.depth }

// ShaderSource names a WGSL shader and its entry point.
type ShaderSource struct {
	path  string
	code  string
	entry string
}

// ShaderFile refers to WGSL source in a file. The entry point defaults to
// "main".
func ShaderFile(path string) ShaderSource {
	return ShaderSource{path: path, entry: "main"}
}

// ShaderCode holds WGSL source inline. The entry point defaults to "main".
func ShaderCode(code string) ShaderSource {
	return ShaderSource{code: code, entry: "main"}
}

// Entry returns s with a different entry point.
func (s ShaderSource) Entry(name string) ShaderSource {
	s.entry = name
	return s
}

func (s ShaderSource) slot() *ParameterSlot {
	if s.path != "" {
		return fileSlot(s.path)
	}
	return inlineSlot([]byte(s.code))
}

// WithVertexShader sets the vertex shader.
func (c Chain) WithVertexShader(src ShaderSource, opts ...SlotOption) Chain {
	return c.push(SetVertexShader{Entry: src.entry}, src.slot(), opts)
}

// WithPixelShader sets the pixel (fragment) shader.
func (c Chain) WithPixelShader(src ShaderSource, opts ...SlotOption) Chain {
	return c.push(SetPixelShader{Entry: src.entry}, src.slot(), opts)
}

// WithVertexBuffer binds data as vertex buffer slot. data is a []byte or a
// slice of fixed-size values, encoded little-endian.
func (c Chain) WithVertexBuffer(slot, stride uint32, data any, opts ...SlotOption) Chain {
	return c.push(BindVertexBuffer{Slot: slot, Stride: stride}, dataSlot(data, false), opts)
}

// WithVertexBufferFile binds the raw contents of a file as vertex buffer slot.
func (c Chain) WithVertexBufferFile(slot, stride uint32, path string, opts ...SlotOption) Chain {
	return c.push(BindVertexBuffer{Slot: slot, Stride: stride}, fileSlot(path), opts)
}

// WithIndexBuffer binds the index buffer. A []uint32 selects 32-bit
// indices; []uint16 and raw []byte select 16-bit indices.
func (c Chain) WithIndexBuffer(data any, opts ...SlotOption) Chain {
	format := gputypes.IndexFormatUint16
	var slot *ParameterSlot
	switch data.(type) {
	case []uint32:
		format = gputypes.IndexFormatUint32
		slot = dataSlot(data, false)
	case []uint16, []byte:
		slot = dataSlot(data, false)
	default:
		slot = errorSlot(configErrorf("index data must be []uint16, []uint32 or []byte, got %T", data))
	}
	return c.push(BindIndexBuffer{Format: format}, slot, opts)
}

// WithIndexBufferFile binds the raw contents of a file as the index buffer.
func (c Chain) WithIndexBufferFile(path string, format gputypes.IndexFormat, opts ...SlotOption) Chain {
	return c.push(BindIndexBuffer{Format: format}, fileSlot(path), opts)
}

// WithConstantBuffer binds data as the uniform block at @binding(slot).
// The payload is zero-padded to a multiple of 16 bytes.
func (c Chain) WithConstantBuffer(slot uint32, data any, opts ...SlotOption) Chain {
	return c.push(BindConstantBuffer{Slot: slot}, dataSlot(data, true), opts)
}

// WithConstantBufferFile binds the contents of a file as the uniform block
// at @binding(slot).
func (c Chain) WithConstantBufferFile(slot uint32, path string, opts ...SlotOption) Chain {
	return c.push(BindConstantBuffer{Slot: slot}, fileSlot(path), opts)
}

// WithImage binds an image file as a texture at @binding(slot).
func (c Chain) WithImage(slot uint32, path string, opts ...SlotOption) Chain {
	return c.push(BindImage{Slot: slot}, fileSlot(path), opts)
}

// WithPassOutput binds color target channel of another pass at
// @binding(slot). Channel -1 binds its depth target. If the pass has not
// rendered yet it renders first and is closed when this evaluation ends.
func (c Chain) WithPassOutput(slot uint32, r *PassResult, channel int, opts ...SlotOption) Chain {
	return c.push(BindPassOutput{Slot: slot, Channel: channel}, passSlot(r, channel), opts)
}

// DefaultSampler returns the sampler WithSampler is usually given: linear
// filtering with repeat addressing.
func DefaultSampler() gputypes.SamplerDescriptor {
	d := gputypes.LinearSamplerDescriptor()
	d.AddressModeU = gputypes.AddressModeRepeat
	d.AddressModeV = gputypes.AddressModeRepeat
	d.AddressModeW = gputypes.AddressModeRepeat
	return d
}

// WithSampler binds a sampler at @binding(slot). Identical descriptors share
// one backend sampler.
func (c Chain) WithSampler(slot uint32, desc gputypes.SamplerDescriptor, opts ...SlotOption) Chain {
	return c.push(BindSampler{Slot: slot, Desc: desc}, valueSlot(desc), opts)
}

// WithTopology sets the primitive topology.
func (c Chain) WithTopology(t gputypes.PrimitiveTopology, opts ...SlotOption) Chain {
	return c.push(SetTopology{Topology: t}, nil, opts)
}

// WithBlendState sets the blend state. nil disables blending.
func (c Chain) WithBlendState(b *gputypes.BlendState, opts ...SlotOption) Chain {
	var state *gputypes.BlendState
	var v any = "replace"
	if b != nil {
		cp := *b
		state = &cp
		v = cp
	}
	return c.push(SetBlendState{State: state}, valueSlot(v), opts)
}

// WithDepthStencilState sets depth and stencil testing. It only takes
// effect on chains with a depth target.
func (c Chain) WithDepthStencilState(s gputypes.DepthStencilState, opts ...SlotOption) Chain {
	return c.push(SetDepthStencilState{State: s}, nil, opts)
}

// WithInputLayout replaces the input layout inferred from the vertex shader.
func (c Chain) WithInputLayout(elements []InputElement, opts ...SlotOption) Chain {
	elems := slices.Clone(elements)
	data, err := encodeData(elems)
	if err != nil {
		return c.push(SetInputLayout{Elements: elems}, errorSlot(err), opts)
	}
	slot := inlineSlot(data)
	slot.Value = elems
	return c.push(SetInputLayout{Elements: elems}, slot, opts)
}

// WithDraw draws vertexCount vertices.
func (c Chain) WithDraw(vertexCount, instanceCount, firstVertex, firstInstance uint32, opts ...SlotOption) Chain {
	return c.push(Draw{VertexCount: vertexCount, InstanceCount: instanceCount, FirstVertex: firstVertex, FirstInstance: firstInstance}, nil, opts)
}

// WithDrawIndexed draws indexCount indices from the bound index buffer.
func (c Chain) WithDrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32, opts ...SlotOption) Chain {
	return c.push(DrawIndexed{IndexCount: indexCount, InstanceCount: instanceCount, FirstIndex: firstIndex, BaseVertex: baseVertex, FirstInstance: firstInstance}, nil, opts)
}

// WithSize sets the output size.
func (c Chain) WithSize(width, height uint32) Chain {
	c.width, c.height = width, height
	return c
}

// WithMRT sets one color target per format.
func (c Chain) WithMRT(formats ...gputypes.TextureFormat) Chain {
	c.formats = slices.Clone(formats)
	return c
}

// WithDepth adds a depth target. With no argument the format is
// Depth32Float; TextureFormatUndefined removes the depth target.
func (c Chain) WithDepth(format ...gputypes.TextureFormat) Chain {
	c.depth = gputypes.TextureFormatDepth32Float
	if len(format) > 0 {
		c.depth = format[0]
	}
	return c
}

// WithClearColor sets the color the targets are cleared to.
func (c Chain) WithClearColor(color gputypes.Color) Chain {
	c.clear = color
	return c
}

// WithLabel names the pass in logs and backend debug labels.
func (c Chain) WithLabel(label string) Chain {
	c.label = label
	return c
}

// Execute returns the lazy result of the chain. No GPU work happens until
// the result is first read.
func (c Chain) Execute() *PassResult {
	return &PassResult{dev: c.dev, chain: c}
}

// Render is an alias of Execute.
func (c Chain) Render() *PassResult { return c.Execute() }

// Save renders the chain, writes color target index to path and releases
// the result.
func (c Chain) Save(path string, index int) error {
	r := c.Execute()
	defer r.Close()
	return r.Save(path, index)
}

func (c Chain) describe() string {
	if c.label != "" {
		return c.label
	}
	return fmt.Sprintf("pass %dx%d", c.width, c.height)
}

func dataSlot(data any, uniform bool) *ParameterSlot {
	b, err := encodeData(data)
	if err != nil {
		return errorSlot(err)
	}
	if uniform {
		b = padTo16(b)
	}
	return inlineSlot(b)
}
