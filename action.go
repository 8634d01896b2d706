package passrec

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ActionType tags the payload of a chain node.
type ActionType uint8

const (
	ActionSetVertexShader ActionType = iota
	ActionSetPixelShader
	ActionBindVertexBuffer
	ActionBindIndexBuffer
	ActionBindConstantBuffer
	ActionBindSampler
	ActionBindImage
	ActionBindPassOutput
	ActionSetTopology
	ActionSetBlendState
	ActionSetDepthStencilState
	ActionSetInputLayout
	ActionDraw
	ActionDrawIndexed

	actionCount
)

// A new ActionType without a name fails to compile here.
var actionNames = [actionCount]string{
	ActionSetVertexShader:      "SetVertexShader",
	ActionSetPixelShader:       "SetPixelShader",
	ActionBindVertexBuffer:     "BindVertexBuffer",
	ActionBindIndexBuffer:      "BindIndexBuffer",
	ActionBindConstantBuffer:   "BindConstantBuffer",
	ActionBindSampler:          "BindSampler",
	ActionBindImage:            "BindImage",
	ActionBindPassOutput:       "BindPassOutput",
	ActionSetTopology:          "SetTopology",
	ActionSetBlendState:        "SetBlendState",
	ActionSetDepthStencilState: "SetDepthStencilState",
	ActionSetInputLayout:       "SetInputLayout",
	ActionDraw:                 "Draw",
	ActionDrawIndexed:          "DrawIndexed",
}

func (t ActionType) String() string {
	if t < actionCount {
		return actionNames[t]
	}
	return fmt.Sprintf("ActionType(%d)", t)
}

// Action is the payload of a chain node. The set of actions is closed.
type Action interface {
	Type() ActionType
	action()
}

// SetVertexShader selects the vertex shader in the node's slot.
type SetVertexShader struct{ Entry string }

// SetPixelShader selects the pixel shader in the node's slot.
type SetPixelShader struct{ Entry string }

// BindVertexBuffer binds the slot's data as vertex buffer Slot.
type BindVertexBuffer struct {
	Slot   uint32
	Stride uint32
}

// BindIndexBuffer binds the slot's data as the index buffer.
type BindIndexBuffer struct{ Format gputypes.IndexFormat }

// BindConstantBuffer binds the slot's data as the uniform block at @binding(Slot).
type BindConstantBuffer struct{ Slot uint32 }

// BindSampler binds a sampler at @binding(Slot).
type BindSampler struct {
	Slot uint32
	Desc gputypes.SamplerDescriptor
}

// BindImage binds the slot's image file as a texture at @binding(Slot).
type BindImage struct{ Slot uint32 }

// BindPassOutput binds an output of another pass at @binding(Slot).
// Channel -1 selects the depth target.
type BindPassOutput struct {
	Slot    uint32
	Channel int
}

// SetTopology sets the primitive topology.
type SetTopology struct{ Topology gputypes.PrimitiveTopology }

// SetBlendState sets the blend state of every color target. A nil State
// disables blending.
type SetBlendState struct{ State *gputypes.BlendState }

// SetDepthStencilState sets depth and stencil testing. Format is taken from
// the chain.
type SetDepthStencilState struct{ State gputypes.DepthStencilState }

// SetInputLayout replaces the layout inferred from the vertex shader.
type SetInputLayout struct{ Elements []InputElement }

// Draw issues a non-indexed draw.
type Draw struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexed issues an indexed draw.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (SetVertexShader) Type() ActionType      { return ActionSetVertexShader }
func (SetPixelShader) Type() ActionType       { return ActionSetPixelShader }
func (BindVertexBuffer) Type() ActionType     { return ActionBindVertexBuffer }
func (BindIndexBuffer) Type() ActionType      { return ActionBindIndexBuffer }
func (BindConstantBuffer) Type() ActionType   { return ActionBindConstantBuffer }
func (BindSampler) Type() ActionType          { return ActionBindSampler }
func (BindImage) Type() ActionType            { return ActionBindImage }
func (BindPassOutput) Type() ActionType       { return ActionBindPassOutput }
func (SetTopology) Type() ActionType          { return ActionSetTopology }
func (SetBlendState) Type() ActionType        { return ActionSetBlendState }
func (SetDepthStencilState) Type() ActionType { return ActionSetDepthStencilState }
func (SetInputLayout) Type() ActionType       { return ActionSetInputLayout }
func (Draw) Type() ActionType                 { return ActionDraw }
func (DrawIndexed) Type() ActionType          { return ActionDrawIndexed }

func (SetVertexShader) action()      {}
func (SetPixelShader) action()       {}
func (BindVertexBuffer) action()     {}
func (BindIndexBuffer) action()      {}
func (BindConstantBuffer) action()   {}
func (BindSampler) action()          {}
func (BindImage) action()            {}
func (BindPassOutput) action()       {}
func (SetTopology) action()          {}
func (SetBlendState) action()        {}
func (SetDepthStencilState) action() {}
func (SetInputLayout) action()       {}
func (Draw) action()                 {}
func (DrawIndexed) action()          {}

// InputElement describes one vertex attribute of an explicit input layout.
type InputElement struct {
	Location uint32
	Format   gputypes.VertexFormat
	// Slot is the vertex buffer the attribute is read from.
	Slot   uint32
	Offset uint64
}
