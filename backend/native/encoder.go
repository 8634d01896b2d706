package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// encoder records gpucore commands into a list's hal encoder. Lookup failures
// are stored on the list and reported by Submit.
type encoder struct {
	b    *Backend
	list *commandList
}

var singleLayer = hal.TextureRange{
	Aspect:          gputypes.TextureAspectAll,
	MipLevelCount:   1,
	ArrayLayerCount: 1,
}

// transition emits barriers moving the textures to usage. Textures already
// in that state are skipped.
func (e *encoder) transition(usage gputypes.TextureUsage, ids ...gpucore.TextureID) {
	e.b.mu.Lock()
	var barriers []hal.TextureBarrier
	for _, id := range ids {
		t, ok := e.b.textures[id]
		if !ok {
			e.list.fail(fmt.Errorf("%w: texture %d", ErrUnknownID, id))
			continue
		}
		if t.state == usage {
			continue
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: t.raw,
			Range:   singleLayer,
			Usage:   hal.TextureUsageTransition{OldUsage: t.state, NewUsage: usage},
		})
		t.state = usage
	}
	e.b.mu.Unlock()
	if len(barriers) > 0 {
		e.list.encoder.TransitionTextures(barriers)
	}
}

func (e *encoder) buffer(id gpucore.BufferID) hal.Buffer {
	e.b.mu.RLock()
	defer e.b.mu.RUnlock()
	buf, ok := e.b.buffers[id]
	if !ok {
		e.list.fail(fmt.Errorf("%w: buffer %d", ErrUnknownID, id))
		return nil
	}
	return buf.raw
}

func (e *encoder) texture(id gpucore.TextureID) *texture {
	e.b.mu.RLock()
	defer e.b.mu.RUnlock()
	t, ok := e.b.textures[id]
	if !ok {
		e.list.fail(fmt.Errorf("%w: texture %d", ErrUnknownID, id))
		return nil
	}
	return t
}

func (e *encoder) CopyBufferToTexture(src gpucore.BufferID, layout gpucore.ImageLayout, dst gpucore.TextureID, width, height uint32) {
	buf, tex := e.buffer(src), e.texture(dst)
	if buf == nil || tex == nil {
		return
	}
	e.transition(gputypes.TextureUsageCopyDst, dst)
	e.list.encoder.CopyBufferToTexture(buf, tex.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: layout.Offset, BytesPerRow: layout.BytesPerRow, RowsPerImage: height},
		TextureBase:  hal.ImageCopyTexture{Texture: tex.raw, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
	if tex.desc.Usage&gputypes.TextureUsageTextureBinding != 0 {
		e.transition(gputypes.TextureUsageTextureBinding, dst)
	}
}

func (e *encoder) CopyTextureToBuffer(src gpucore.TextureID, aspect gputypes.TextureAspect, dst gpucore.BufferID, layout gpucore.ImageLayout, width, height uint32) {
	tex, buf := e.texture(src), e.buffer(dst)
	if buf == nil || tex == nil {
		return
	}
	if aspect == gputypes.TextureAspectUndefined {
		aspect = gputypes.TextureAspectAll
	}
	e.transition(gputypes.TextureUsageCopySrc, src)
	e.list.encoder.CopyTextureToBuffer(tex.raw, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: layout.Offset, BytesPerRow: layout.BytesPerRow, RowsPerImage: height},
		TextureBase:  hal.ImageCopyTexture{Texture: tex.raw, Aspect: aspect},
		Size:         hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
}

func (e *encoder) PrepareSampled(textures []gpucore.TextureID) {
	e.transition(gputypes.TextureUsageTextureBinding, textures...)
}

func (e *encoder) BeginRenderPass(desc *gpucore.RenderPassDesc) gpucore.RenderPass {
	targets := make([]gpucore.TextureID, 0, len(desc.Color)+1)
	pd := &hal.RenderPassDescriptor{Label: desc.Label}

	e.b.mu.RLock()
	for _, c := range desc.Color {
		v, ok := e.b.views[c.View]
		if !ok {
			e.list.fail(fmt.Errorf("%w: color view %d", ErrUnknownID, c.View))
			continue
		}
		targets = append(targets, v.texture)
		pd.ColorAttachments = append(pd.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v.raw,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c.Clear,
		})
	}
	if d := desc.Depth; d != nil {
		if v, ok := e.b.views[d.View]; ok {
			targets = append(targets, v.texture)
			att := &hal.RenderPassDepthStencilAttachment{
				View:            v.raw,
				DepthLoadOp:     gputypes.LoadOpClear,
				DepthStoreOp:    gputypes.StoreOpStore,
				DepthClearValue: d.DepthClear,
			}
			if d.HasStencil {
				att.StencilLoadOp = gputypes.LoadOpClear
				att.StencilStoreOp = gputypes.StoreOpStore
				att.StencilClearValue = d.StencilClear
			}
			pd.DepthStencilAttachment = att
		} else {
			e.list.fail(fmt.Errorf("%w: depth view %d", ErrUnknownID, d.View))
		}
	}
	e.b.mu.RUnlock()

	e.transition(gputypes.TextureUsageRenderAttachment, targets...)
	return &renderPass{enc: e, raw: e.list.encoder.BeginRenderPass(pd)}
}

// renderPass forwards draw state to a hal render pass encoder.
type renderPass struct {
	enc *encoder
	raw hal.RenderPassEncoder
}

func (p *renderPass) SetPipeline(id gpucore.RenderPipelineID) {
	p.enc.b.mu.RLock()
	pl, ok := p.enc.b.pipelines[id]
	p.enc.b.mu.RUnlock()
	if !ok {
		p.enc.list.fail(fmt.Errorf("%w: pipeline %d", ErrUnknownID, id))
		return
	}
	p.raw.SetPipeline(pl.raw)
}

func (p *renderPass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	p.enc.b.mu.RLock()
	g, ok := p.enc.b.bindGroups[id]
	p.enc.b.mu.RUnlock()
	if !ok {
		p.enc.list.fail(fmt.Errorf("%w: bind group %d", ErrUnknownID, id))
		return
	}
	p.raw.SetBindGroup(index, g, nil)
}

func (p *renderPass) SetVertexBuffer(slot uint32, id gpucore.BufferID, offset uint64) {
	if buf := p.enc.buffer(id); buf != nil {
		p.raw.SetVertexBuffer(slot, buf, offset)
	}
}

func (p *renderPass) SetIndexBuffer(id gpucore.BufferID, format gputypes.IndexFormat, offset uint64) {
	if buf := p.enc.buffer(id); buf != nil {
		p.raw.SetIndexBuffer(buf, format, offset)
	}
}

func (p *renderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.raw.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.raw.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *renderPass) End() {
	p.raw.End()
}
