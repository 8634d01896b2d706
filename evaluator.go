package passrec

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/gpucore"
)

type boundBuffer struct {
	id     gpucore.BufferID
	stride uint32
	size   uint64
}

// evalState is the mutable state of one evaluation.
type evalState struct {
	chain Chain

	vs, ps   *node
	topology gputypes.PrimitiveTopology
	blend    *gputypes.BlendState
	depth    *gputypes.DepthStencilState
	layout   []InputElement

	vertex      map[uint32]boundBuffer
	index       gpucore.BufferID
	indexFormat gputypes.IndexFormat

	bindings map[uint32]gpucore.BindGroupEntry

	pipeline      *cachedObject
	vertexLayouts []gputypes.VertexBufferLayout
	pipelineDirty bool
	groupDirty    bool

	views     map[*node]gpucore.TextureViewID
	images    map[*node]*cachedObject
	sampled   []gpucore.TextureID
	disposals []*PassResult

	// uploads are cache keys of textures whose upload is recorded in the
	// current list but not yet submitted.
	uploads []string
}

func newEvalState(c Chain) *evalState {
	alpha := gputypes.BlendStateAlpha()
	return &evalState{
		chain:         c,
		blend:         &alpha,
		vertex:        make(map[uint32]boundBuffer),
		bindings:      make(map[uint32]gpucore.BindGroupEntry),
		views:         make(map[*node]gpucore.TextureViewID),
		images:        make(map[*node]*cachedObject),
		pipelineDirty: true,
	}
}

func (st *evalState) bind(e gpucore.BindGroupEntry) {
	st.bindings[e.Binding] = e
	st.groupDirty = true
}

// resolveOverrides returns the nodes to apply, in order. Argument nodes are
// dropped; every named node whose name an argument carries takes its value
// from the last such argument. See override for what the node keeps.
func resolveOverrides(nodes []*node) ([]*node, error) {
	overrides := make(map[string]*node)
	for _, n := range nodes {
		if n.slot.IsArgument && n.slot.Name != "" {
			overrides[n.slot.Name] = n
		}
	}

	ops := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.slot.IsArgument {
			continue
		}
		if n.slot.Name != "" {
			if o, ok := overrides[n.slot.Name]; ok {
				if o.payload.Type() != n.payload.Type() {
					return nil, configErrorf("argument %q is a %v but overrides a %v", n.slot.Name, o.payload.Type(), n.payload.Type())
				}
				n = override(n, o)
			}
		}
		ops = append(ops, n)
	}
	return ops, nil
}

// override returns n with the slot of the argument o. Binding positions
// (slot index, stride) stay with n. Values that live in the payload, such as
// shader entry points, sampler descriptors and fixed-function state, come
// from o.
func override(n, o *node) *node {
	out := &node{prev: n.prev, payload: o.payload, slot: o.slot}
	switch p := n.payload.(type) {
	case BindVertexBuffer, BindConstantBuffer, BindImage:
		out.payload = p
	case BindSampler:
		out.payload = BindSampler{Slot: p.Slot, Desc: o.payload.(BindSampler).Desc}
	case BindPassOutput:
		out.payload = BindPassOutput{Slot: p.Slot, Channel: o.payload.(BindPassOutput).Channel}
	}
	return out
}

// evaluate renders c and returns its targets. It is the only place a chain
// is traversed.
func (d *Device) evaluate(c Chain) (targets *renderTargets, err error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if d.depth == 0 {
		d.drainInvalidations()
	}
	d.depth++
	defer func() { d.depth-- }()
	d.evaluations++

	ops, err := resolveOverrides(c.nodes())
	if err != nil {
		return nil, err
	}

	st := newEvalState(c)
	recording := false
	defer func() {
		if err == nil {
			return
		}
		if recording {
			if derr := d.pacer.Discard(); derr != nil {
				d.log.Warn("passrec: discard command list", "err", derr)
			}
		}
		for _, key := range st.uploads {
			d.resources.Invalidate(key)
		}
		d.releaseEvalState(st)
		if targets != nil {
			targets.release(d)
			targets = nil
		}
	}()

	// Dependent passes submit their own work, so they render before this
	// pass records anything.
	if err = d.prepareDependencies(ops, st); err != nil {
		return nil, err
	}

	enc, err := d.pacer.Encoder()
	if err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}
	recording = true
	if err = d.prepareImages(enc, ops, st); err != nil {
		return nil, err
	}
	if targets, err = d.createTargets(c); err != nil {
		return nil, err
	}

	if len(st.sampled) > 0 {
		enc.PrepareSampled(st.sampled)
	}
	pass := enc.BeginRenderPass(targets.passDesc(c))
	pass.SetViewport(0, 0, float32(c.width), float32(c.height), 0, 1)
	for _, n := range ops {
		if err = d.apply(pass, st, n); err != nil {
			pass.End()
			return targets, err
		}
	}
	pass.End()

	if _, err = d.pacer.Submit(); err != nil {
		recording = false
		return targets, fmt.Errorf("passrec: %w", err)
	}
	d.releaseEvalState(st)
	d.log.Debug("passrec: pass rendered", "pass", c.describe(), "nodes", len(ops))
	return targets, nil
}

// releaseEvalState drops the views created for this evaluation and closes
// the passes rendered only as its inputs.
func (d *Device) releaseEvalState(st *evalState) {
	for _, v := range st.views {
		view := v
		d.pacer.Retain(func() { d.backend.DestroyTextureView(view) })
	}
	clear(st.views)
	for _, r := range st.disposals {
		r.Close()
	}
	st.disposals = nil
}

func (d *Device) prepareDependencies(ops []*node, st *evalState) error {
	for _, n := range ops {
		a, ok := n.payload.(BindPassOutput)
		if !ok {
			continue
		}
		r := n.slot.Pass
		if r == nil {
			return configErrorf("pass output at @binding(%d) has no pass", a.Slot)
		}
		if r.dev != d {
			return configErrorf("pass output at @binding(%d) belongs to another device", a.Slot)
		}
		if !r.rendered && !r.disposed {
			if err := r.CheckRender(); err != nil {
				return fmt.Errorf("passrec: input pass %s: %w", r.chain.describe(), err)
			}
			st.disposals = append(st.disposals, r)
		}
		tex, format, aspect, err := r.target(a.Channel)
		if err != nil {
			return err
		}
		view, err := d.backend.CreateTextureView(tex, &gpucore.TextureViewDesc{
			Label:  fmt.Sprintf("%s channel %d", r.chain.describe(), a.Channel),
			Format: format,
			Aspect: aspect,
		})
		if err != nil {
			return fmt.Errorf("passrec: create pass output view: %w", err)
		}
		st.views[n] = view
		st.sampled = append(st.sampled, tex)
	}
	return nil
}

func (d *Device) prepareImages(enc gpucore.Encoder, ops []*node, st *evalState) error {
	for _, n := range ops {
		if _, ok := n.payload.(BindImage); !ok {
			continue
		}
		obj, key, err := d.texture(enc, n.slot)
		if err != nil {
			return err
		}
		if key != "" {
			st.uploads = append(st.uploads, key)
		}
		st.images[n] = obj
		st.sampled = append(st.sampled, obj.texture)
	}
	return nil
}

// apply executes one node against the open render pass.
func (d *Device) apply(pass gpucore.RenderPass, st *evalState, n *node) error {
	if n.slot.err != nil {
		return n.slot.err
	}
	switch a := n.payload.(type) {
	case SetVertexShader:
		st.vs = n
		st.pipelineDirty = true

	case SetPixelShader:
		st.ps = n
		st.pipelineDirty = true

	case BindVertexBuffer:
		obj, err := d.buffer(n.slot)
		if err != nil {
			return err
		}
		st.vertex[a.Slot] = boundBuffer{id: obj.buffer, stride: a.Stride, size: obj.size}
		st.pipelineDirty = true
		pass.SetVertexBuffer(a.Slot, obj.buffer, 0)

	case BindIndexBuffer:
		obj, err := d.buffer(n.slot)
		if err != nil {
			return err
		}
		st.index, st.indexFormat = obj.buffer, a.Format
		pass.SetIndexBuffer(obj.buffer, a.Format, 0)

	case BindConstantBuffer:
		obj, err := d.buffer(n.slot)
		if err != nil {
			return err
		}
		st.bind(gpucore.BindGroupEntry{Binding: a.Slot, Buffer: obj.buffer, Size: obj.size})

	case BindSampler:
		obj, err := d.sampler(n.slot, a.Desc)
		if err != nil {
			return err
		}
		st.bind(gpucore.BindGroupEntry{Binding: a.Slot, Sampler: obj.sampler})

	case BindImage:
		st.bind(gpucore.BindGroupEntry{Binding: a.Slot, TextureView: st.images[n].view})

	case BindPassOutput:
		st.bind(gpucore.BindGroupEntry{Binding: a.Slot, TextureView: st.views[n]})

	case SetTopology:
		st.topology = a.Topology
		st.pipelineDirty = true

	case SetBlendState:
		st.blend = a.State
		st.pipelineDirty = true

	case SetDepthStencilState:
		s := a.State
		st.depth = &s
		st.pipelineDirty = true

	case SetInputLayout:
		st.layout = a.Elements
		st.pipelineDirty = true

	case Draw:
		if err := d.prepareDraw(pass, st); err != nil {
			return err
		}
		pass.Draw(a.VertexCount, max(a.InstanceCount, 1), a.FirstVertex, a.FirstInstance)

	case DrawIndexed:
		if st.index == gpucore.InvalidID {
			return configErrorf("indexed draw without index buffer")
		}
		if err := d.prepareDraw(pass, st); err != nil {
			return err
		}
		pass.DrawIndexed(a.IndexCount, max(a.InstanceCount, 1), a.FirstIndex, a.BaseVertex, a.FirstInstance)

	default:
		panic(fmt.Sprintf("passrec: unhandled action %v", n.payload.Type()))
	}
	return nil
}

// prepareDraw makes sure the pipeline and bind group match the current
// state before a draw.
func (d *Device) prepareDraw(pass gpucore.RenderPass, st *evalState) error {
	if st.vs == nil {
		return configErrorf("draw without vertex shader")
	}
	if st.ps == nil {
		return configErrorf("draw without pixel shader")
	}

	if st.pipelineDirty {
		obj, layouts, err := d.pipeline(st)
		if err != nil {
			return err
		}
		if obj != st.pipeline {
			pass.SetPipeline(obj.pipeline)
			st.pipeline = obj
			st.groupDirty = true
		}
		st.vertexLayouts = layouts
		st.pipelineDirty = false
	}

	for slot, l := range st.vertexLayouts {
		if len(l.Attributes) == 0 {
			continue
		}
		if _, ok := st.vertex[uint32(slot)]; !ok {
			return configErrorf("vertex shader reads location %d but vertex buffer %d is not bound", l.Attributes[0].ShaderLocation, slot)
		}
	}

	if st.groupDirty && len(st.pipeline.bindings) > 0 {
		entries, err := st.groupEntries()
		if err != nil {
			return err
		}
		id, err := d.backend.CreateBindGroup(st.pipeline.pipeline, entries)
		if err != nil {
			return fmt.Errorf("passrec: create bind group: %w", err)
		}
		if _, old, evicted := d.bindGroups.Put(id); evicted {
			d.pacer.Retain(func() { d.backend.DestroyBindGroup(old) })
		}
		pass.SetBindGroup(0, id)
	}
	st.groupDirty = false
	return nil
}

// groupEntries collects the bound resources the pipeline layout asks for.
func (st *evalState) groupEntries() ([]gpucore.BindGroupEntry, error) {
	entries := make([]gpucore.BindGroupEntry, 0, len(st.pipeline.bindings))
	for _, b := range st.pipeline.bindings {
		e, ok := st.bindings[b.Binding]
		if !ok {
			return nil, configErrorf("shaders expect a %v at @binding(%d), nothing is bound", b.Kind, b.Binding)
		}
		var match bool
		switch b.Kind {
		case gpucore.BindingUniform:
			match = e.Buffer != gpucore.InvalidID
		case gpucore.BindingTexture, gpucore.BindingDepthTexture:
			match = e.TextureView != gpucore.InvalidID
		case gpucore.BindingSampler, gpucore.BindingComparisonSampler:
			match = e.Sampler != gpucore.InvalidID
		}
		if !match {
			return nil, configErrorf("shaders expect a %v at @binding(%d), a different resource is bound", b.Kind, b.Binding)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
