package passrec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/shaderc"
)

// pipeline returns the pipeline-state object for the current state,
// together with the vertex buffer layouts it was built with.
func (d *Device) pipeline(st *evalState) (*cachedObject, []gputypes.VertexBufferLayout, error) {
	vsEntry := st.vs.payload.(SetVertexShader).Entry
	psEntry := st.ps.payload.(SetPixelShader).Entry

	vs, err := d.shader(st.vs, vsEntry, shaderc.StageVertex)
	if err != nil {
		return nil, nil, err
	}
	ps, err := d.shader(st.ps, psEntry, shaderc.StageFragment)
	if err != nil {
		return nil, nil, err
	}

	layouts, err := vertexLayouts(vs.reflection.Inputs, st.layout, st.vertex)
	if err != nil {
		return nil, nil, err
	}
	bindings, err := mergeBindings(vs.reflection.Resources, ps.reflection.Resources)
	if err != nil {
		return nil, nil, err
	}
	targets, err := colorTargets(st.chain.formats, ps.reflection.Targets, st.blend)
	if err != nil {
		return nil, nil, err
	}
	depth := depthState(st.chain.depth, st.depth)

	var key strings.Builder
	key.WriteString("pso|")
	for _, part := range []string{st.vs.slot.Shortcut, vsEntry, st.ps.slot.Shortcut, psEntry} {
		key.WriteString(part)
		key.WriteByte('|')
	}
	fmt.Fprintf(&key, "%v|%v|%v", layouts, st.topology, st.chain.formats)
	if st.blend != nil {
		fmt.Fprintf(&key, "|blend %+v", *st.blend)
	}
	if depth != nil {
		fmt.Fprintf(&key, "|depth %+v", *depth)
	}

	obj, err := d.resources.Get(key.String(), func(string) (*cachedObject, error) {
		id, err := d.backend.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
			Label:          st.chain.describe(),
			VertexModule:   vs.module,
			VertexEntry:    vsEntry,
			FragmentModule: ps.module,
			FragmentEntry:  psEntry,
			VertexBuffers:  layouts,
			Topology:       st.topology,
			ColorTargets:   targets,
			DepthStencil:   depth,
			Bindings:       bindings,
		})
		if err != nil {
			return nil, fmt.Errorf("passrec: create pipeline: %w", err)
		}
		d.log.Debug("passrec: pipeline created", "vs", vsEntry, "ps", psEntry, "bindings", len(bindings))
		return &cachedObject{
			pipeline: id,
			bindings: bindings,
			release:  func() { d.backend.DestroyRenderPipeline(id) },
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return obj, layouts, nil
}

func bindingKind(k shaderc.ResourceKind) gpucore.BindingKind {
	switch k {
	case shaderc.ResourceTexture:
		return gpucore.BindingTexture
	case shaderc.ResourceDepthTexture:
		return gpucore.BindingDepthTexture
	case shaderc.ResourceSampler:
		return gpucore.BindingSampler
	case shaderc.ResourceComparisonSampler:
		return gpucore.BindingComparisonSampler
	default:
		return gpucore.BindingUniform
	}
}

// mergeBindings unions the resources of both stages into the layout of
// bind group 0. A binding used by both stages must agree on its kind.
func mergeBindings(vs, ps []shaderc.BoundResource) ([]gpucore.BindingLayout, error) {
	byBinding := make(map[uint32]*gpucore.BindingLayout)
	add := func(rs []shaderc.BoundResource, stage gputypes.ShaderStage) error {
		for _, r := range rs {
			if r.Group != 0 {
				return configErrorf("%s uses @group(%d); only group 0 is supported", r.Name, r.Group)
			}
			kind := bindingKind(r.Kind)
			if b, ok := byBinding[r.Binding]; ok {
				if b.Kind != kind {
					return configErrorf("@binding(%d) is a %v in one stage and a %v in the other", r.Binding, b.Kind, kind)
				}
				b.Visibility |= stage
				continue
			}
			byBinding[r.Binding] = &gpucore.BindingLayout{Binding: r.Binding, Kind: kind, Visibility: stage}
		}
		return nil
	}
	if err := add(vs, gputypes.ShaderStageVertex); err != nil {
		return nil, err
	}
	if err := add(ps, gputypes.ShaderStageFragment); err != nil {
		return nil, err
	}

	out := make([]gpucore.BindingLayout, 0, len(byBinding))
	for _, b := range byBinding {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out, nil
}

func colorTargets(formats []gputypes.TextureFormat, written int, blend *gputypes.BlendState) ([]gputypes.ColorTargetState, error) {
	if written > len(formats) {
		return nil, configErrorf("pixel shader writes %d targets, the pass has %d", written, len(formats))
	}
	targets := make([]gputypes.ColorTargetState, len(formats))
	for i, f := range formats {
		targets[i] = gputypes.ColorTargetState{Format: f, Blend: blend, WriteMask: gputypes.ColorWriteMaskAll}
	}
	return targets, nil
}

// depthState returns the depth state of the pipeline, or nil when the pass
// has no depth target.
func depthState(format gputypes.TextureFormat, set *gputypes.DepthStencilState) *gputypes.DepthStencilState {
	if format == gputypes.TextureFormatUndefined {
		return nil
	}
	var s gputypes.DepthStencilState
	if set != nil {
		s = *set
	} else {
		s = gputypes.DefaultDepthStencilState(format)
	}
	s.Format = format
	return &s
}
