package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/wgpu/hal"
)

func viewDescriptor(tex gpucore.TextureDesc, desc *gpucore.TextureViewDesc) *hal.TextureViewDescriptor {
	out := &hal.TextureViewDescriptor{
		Format:          tex.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
	if desc == nil {
		return out
	}
	out.Label = desc.Label
	if desc.Format != gputypes.TextureFormatUndefined {
		out.Format = desc.Format
	}
	if desc.Aspect != gputypes.TextureAspectUndefined {
		out.Aspect = desc.Aspect
	}
	return out
}

func samplerDescriptor(desc *gputypes.SamplerDescriptor) *hal.SamplerDescriptor {
	anisotropy := desc.MaxAnisotropy
	if anisotropy == 0 {
		anisotropy = 1
	}
	lodMax := desc.LodMaxClamp
	if lodMax == 0 {
		lodMax = 32
	}
	return &hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		// FilterMode and MipmapFilterMode share values.
		MipmapFilter: gputypes.FilterMode(desc.MipmapFilter),
		LodMinClamp:  desc.LodMinClamp,
		LodMaxClamp:  lodMax,
		Compare:      desc.Compare,
		Anisotropy:   anisotropy,
	}
}

func layoutEntries(bindings []gpucore.BindingLayout) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, bl := range bindings {
		e := gputypes.BindGroupLayoutEntry{Binding: bl.Binding, Visibility: bl.Visibility}
		switch bl.Kind {
		case gpucore.BindingUniform:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case gpucore.BindingTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case gpucore.BindingDepthTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeDepth,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case gpucore.BindingSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case gpucore.BindingComparisonSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeComparison}
		}
		entries = append(entries, e)
	}
	return entries
}

func pipelineDescriptor(desc *gpucore.RenderPipelineDesc, layout hal.PipelineLayout, vs, fs hal.ShaderModule) *hal.RenderPipelineDescriptor {
	prim := gputypes.DefaultPrimitiveState()
	prim.Topology = desc.Topology
	prim.CullMode = gputypes.CullModeNone
	return &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:    prim,
		DepthStencil: depthStencil(desc.DepthStencil),
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.FragmentEntry,
			Targets:    desc.ColorTargets,
		},
	}
}

func depthStencil(ds *gputypes.DepthStencilState) *hal.DepthStencilState {
	if ds == nil {
		return nil
	}
	return &hal.DepthStencilState{
		Format:              ds.Format,
		DepthWriteEnabled:   ds.DepthWriteEnabled,
		DepthCompare:        ds.DepthCompare,
		StencilFront:        stencilFace(ds.StencilFront),
		StencilBack:         stencilFace(ds.StencilBack),
		StencilReadMask:     ds.StencilReadMask,
		StencilWriteMask:    ds.StencilWriteMask,
		DepthBias:           ds.DepthBias,
		DepthBiasSlopeScale: ds.DepthBiasSlopeScale,
		DepthBiasClamp:      ds.DepthBiasClamp,
	}
}

func stencilFace(f gputypes.StencilFaceState) hal.StencilFaceState {
	compare := f.Compare
	if compare == gputypes.CompareFunctionUndefined {
		compare = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     compare,
		FailOp:      stencilOp(f.FailOp),
		DepthFailOp: stencilOp(f.DepthFailOp),
		PassOp:      stencilOp(f.PassOp),
	}
}

// stencilOp maps gputypes' 1-based operations onto hal's 0-based ones.
// Undefined maps to Keep.
func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	if op == gputypes.StencilOperationUndefined || op > gputypes.StencilOperationDecrementWrap {
		return hal.StencilOperationKeep
	}
	return hal.StencilOperation(op - gputypes.StencilOperationKeep)
}
