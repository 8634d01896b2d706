package shaderc

import (
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
)

// ResourceKind classifies a bound global.
type ResourceKind uint8

const (
	ResourceUniform ResourceKind = iota
	ResourceTexture
	ResourceDepthTexture
	ResourceSampler
	ResourceComparisonSampler
)

var resourceKindNames = [...]string{
	ResourceUniform:           "uniform",
	ResourceTexture:           "texture",
	ResourceDepthTexture:      "depth texture",
	ResourceSampler:           "sampler",
	ResourceComparisonSampler: "comparison sampler",
}

func (k ResourceKind) String() string {
	if int(k) < len(resourceKindNames) {
		return resourceKindNames[k]
	}
	return "unknown"
}

// InputParameter is a located vertex input.
type InputParameter struct {
	Name     string
	Location uint32
	Format   gputypes.VertexFormat
}

// BoundResource is a global bound with @group/@binding.
type BoundResource struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    ResourceKind
	// Size is the byte size of a uniform block, zero otherwise.
	Size uint32
}

// Reflection describes the interface of one entry point.
type Reflection struct {
	// Inputs are the @location arguments, sorted by location. Built-ins are
	// not listed.
	Inputs []InputParameter
	// Targets is the number of @location outputs of a fragment entry point.
	Targets int
	// Resources are the bound globals the entry point references, directly
	// or through helper functions, sorted by group and binding.
	Resources []BoundResource
}

func reflect(m *ir.Module, ep *ir.EntryPoint) Reflection {
	var r Reflection
	for _, arg := range ep.Function.Arguments {
		r.Inputs = appendInputs(r.Inputs, m, arg.Name, arg.Type, arg.Binding)
	}
	sort.Slice(r.Inputs, func(i, j int) bool { return r.Inputs[i].Location < r.Inputs[j].Location })

	if ep.Stage == ir.StageFragment && ep.Function.Result != nil {
		r.Targets = countLocations(m, ep.Function.Result.Type, ep.Function.Result.Binding)
	}

	used := usedGlobals(m, ep)
	for h, gv := range m.GlobalVariables {
		if gv.Binding == nil || !used[ir.GlobalVariableHandle(h)] {
			continue
		}
		res := BoundResource{Name: gv.Name, Group: gv.Binding.Group, Binding: gv.Binding.Binding}
		switch inner := m.Types[gv.Type].Inner.(type) {
		case ir.SamplerType:
			res.Kind = ResourceSampler
			if inner.Comparison {
				res.Kind = ResourceComparisonSampler
			}
		case ir.ImageType:
			res.Kind = ResourceTexture
			if inner.Class == ir.ImageClassDepth {
				res.Kind = ResourceDepthTexture
			}
		default:
			if gv.Space != ir.SpaceUniform {
				continue
			}
			res.Kind = ResourceUniform
			res.Size = ir.TypeSize(m, gv.Type)
		}
		r.Resources = append(r.Resources, res)
	}
	sort.Slice(r.Resources, func(i, j int) bool {
		a, b := r.Resources[i], r.Resources[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})
	return r
}

// appendInputs adds the located inputs of one argument. Struct arguments
// contribute their located members.
func appendInputs(dst []InputParameter, m *ir.Module, name string, th ir.TypeHandle, binding *ir.Binding) []InputParameter {
	if binding != nil {
		loc, ok := (*binding).(ir.LocationBinding)
		if !ok {
			return dst
		}
		return append(dst, InputParameter{
			Name:     name,
			Location: loc.Location,
			Format:   vertexFormat(m.Types[th].Inner),
		})
	}
	st, ok := m.Types[th].Inner.(ir.StructType)
	if !ok {
		return dst
	}
	for _, mem := range st.Members {
		dst = appendInputs(dst, m, mem.Name, mem.Type, mem.Binding)
	}
	return dst
}

func countLocations(m *ir.Module, th ir.TypeHandle, binding *ir.Binding) int {
	if binding != nil {
		if _, ok := (*binding).(ir.LocationBinding); ok {
			return 1
		}
		return 0
	}
	st, ok := m.Types[th].Inner.(ir.StructType)
	if !ok {
		return 0
	}
	n := 0
	for _, mem := range st.Members {
		n += countLocations(m, mem.Type, mem.Binding)
	}
	return n
}

var (
	floatFormats = [...]gputypes.VertexFormat{gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2, gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4}
	sintFormats  = [...]gputypes.VertexFormat{gputypes.VertexFormatSint32, gputypes.VertexFormatSint32x2, gputypes.VertexFormatSint32x3, gputypes.VertexFormatSint32x4}
	uintFormats  = [...]gputypes.VertexFormat{gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2, gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4}
)

func vertexFormat(inner ir.TypeInner) gputypes.VertexFormat {
	var scalar ir.ScalarType
	components := 1
	switch t := inner.(type) {
	case ir.ScalarType:
		scalar = t
	case ir.VectorType:
		scalar = t.Scalar
		components = int(t.Size)
	default:
		return gputypes.VertexFormatFloat32x4
	}
	switch scalar.Kind {
	case ir.ScalarSint:
		return sintFormats[components-1]
	case ir.ScalarUint:
		return uintFormats[components-1]
	default:
		return floatFormats[components-1]
	}
}

// usedGlobals returns the globals referenced by the entry point. Helper
// functions are not traced through the call graph; every global a helper
// references counts as used.
func usedGlobals(m *ir.Module, ep *ir.EntryPoint) map[ir.GlobalVariableHandle]bool {
	used := make(map[ir.GlobalVariableHandle]bool)
	mark := func(fn *ir.Function) {
		for _, e := range fn.Expressions {
			if g, ok := e.Kind.(ir.ExprGlobalVariable); ok {
				used[g.Variable] = true
			}
		}
	}
	mark(&ep.Function)
	for i := range m.Functions {
		mark(&m.Functions[i])
	}
	return used
}
