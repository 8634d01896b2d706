package gpucore

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each backend implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// TextureViewID is an opaque handle to a view of a texture.
type TextureViewID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// RenderPipelineID is an opaque handle to a render pipeline-state object.
type RenderPipelineID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// CommandListID is an opaque handle to a resettable command list.
type CommandListID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture with a single mip level.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// TextureViewDesc describes a view of a texture.
// A zero Format inherits the texture's format.
type TextureViewDesc struct {
	Label  string
	Format gputypes.TextureFormat
	Aspect gputypes.TextureAspect
}

// ShaderModuleDesc describes a shader module. Backends that consume WGSL
// directly use WGSL; the others use the SPIR-V words.
type ShaderModuleDesc struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// BindingKind classifies one entry of a pipeline's resource layout.
type BindingKind uint8

const (
	// BindingUniform is a uniform (constant) buffer.
	BindingUniform BindingKind = iota
	// BindingTexture is a sampled float texture.
	BindingTexture
	// BindingDepthTexture is a sampled depth texture.
	BindingDepthTexture
	// BindingSampler is a filtering sampler.
	BindingSampler
	// BindingComparisonSampler is a depth comparison sampler.
	BindingComparisonSampler
)

var bindingKindNames = [...]string{
	BindingUniform:           "uniform",
	BindingTexture:           "texture",
	BindingDepthTexture:      "depth-texture",
	BindingSampler:           "sampler",
	BindingComparisonSampler: "comparison-sampler",
}

// String returns the binding kind name.
func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// BindingLayout is one resource slot a pipeline expects in bind group 0.
type BindingLayout struct {
	Binding    uint32
	Kind       BindingKind
	Visibility gputypes.ShaderStages
}

// BindGroupEntry binds one resource to a binding number.
// Exactly one of Buffer, TextureView or Sampler is set.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      BufferID
	Offset      uint64
	Size        uint64
	TextureView TextureViewID
	Sampler     SamplerID
}

// RenderPipelineDesc describes a render pipeline-state object.
type RenderPipelineDesc struct {
	Label string

	VertexModule   ShaderModuleID
	VertexEntry    string
	FragmentModule ShaderModuleID
	FragmentEntry  string

	VertexBuffers []gputypes.VertexBufferLayout
	Topology      gputypes.PrimitiveTopology
	ColorTargets  []gputypes.ColorTargetState
	DepthStencil  *gputypes.DepthStencilState

	// Bindings is the layout of bind group 0, merged from both stages.
	Bindings []BindingLayout
}

// ColorAttachment is a render target cleared at the start of a pass.
type ColorAttachment struct {
	View  TextureViewID
	Clear gputypes.Color
}

// DepthAttachment is a depth/stencil target cleared at the start of a pass.
type DepthAttachment struct {
	View         TextureViewID
	DepthClear   float32
	StencilClear uint32
	HasStencil   bool
}

// RenderPassDesc describes a render pass.
type RenderPassDesc struct {
	Label string
	Color []ColorAttachment
	Depth *DepthAttachment
}

// ImageLayout describes how texel rows are laid out in a buffer.
// BytesPerRow must be a multiple of [CopyPitchAlignment].
type ImageLayout struct {
	Offset      uint64
	BytesPerRow uint32
}

// CopyPitchAlignment is the required row pitch alignment for
// buffer/texture copies.
const CopyPitchAlignment = 256

// AlignedPitch returns the smallest multiple of CopyPitchAlignment that holds
// rowBytes bytes.
func AlignedPitch(rowBytes uint32) uint32 {
	return (rowBytes + CopyPitchAlignment - 1) &^ (CopyPitchAlignment - 1)
}

// BytesPerPixel returns the texel size of the formats passrec renders to and
// samples from. It returns 0 for formats it does not know.
func BytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR32Float,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}
