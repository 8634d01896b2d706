package passrec

import (
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/internal/shaderc"
)

// vertexLayouts builds one layout per vertex buffer slot, indexed by slot.
//
// Without an explicit input layout every shader input reads its own buffer:
// @location(n) comes from slot n at offset 0 in the reflected format. An
// explicit layout must cover every input the shader declares.
func vertexLayouts(inputs []shaderc.InputParameter, elems []InputElement, bound map[uint32]boundBuffer) ([]gputypes.VertexBufferLayout, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if len(elems) == 0 {
		elems = make([]InputElement, len(inputs))
		for i, in := range inputs {
			elems[i] = InputElement{Location: in.Location, Format: in.Format, Slot: in.Location}
		}
	} else {
		for _, in := range inputs {
			if !slices.ContainsFunc(elems, func(e InputElement) bool { return e.Location == in.Location }) {
				return nil, configErrorf("input layout has no element for @location(%d) %s", in.Location, in.Name)
			}
		}
	}

	var maxSlot uint32
	for _, e := range elems {
		if e.Format == gputypes.VertexFormatUndefined {
			return nil, configErrorf("input element @location(%d) has no format", e.Location)
		}
		maxSlot = max(maxSlot, e.Slot)
	}

	layouts := make([]gputypes.VertexBufferLayout, maxSlot+1)
	for _, e := range elems {
		l := &layouts[e.Slot]
		l.StepMode = gputypes.VertexStepModeVertex
		l.Attributes = append(l.Attributes, gputypes.VertexAttribute{
			Format:         e.Format,
			Offset:         e.Offset,
			ShaderLocation: e.Location,
		})
		l.ArrayStride = max(l.ArrayStride, e.Offset+e.Format.Size())
	}
	for slot := range layouts {
		if b, ok := bound[uint32(slot)]; ok && b.stride != 0 {
			layouts[slot].ArrayStride = uint64(b.stride)
		}
	}
	return layouts, nil
}
