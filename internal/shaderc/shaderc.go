package shaderc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// ErrEntryPoint is returned when the requested entry point does not exist
// for the requested stage.
var ErrEntryPoint = errors.New("shaderc: entry point not found")

// Stage is a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

// String returns the WGSL attribute name of the stage.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

func (s Stage) ir() ir.ShaderStage {
	if s == StageFragment {
		return ir.StageFragment
	}
	return ir.StageVertex
}

// Module is a compiled shader entry point.
type Module struct {
	Entry      string
	Stage      Stage
	WGSL       string
	SPIRV      []uint32
	Reflection Reflection
}

// Compile parses, validates and lowers source to SPIR-V and reflects the
// interface of entry.
func Compile(source, entry string, stage Stage) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, err
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("validation: %w", &verrs[0])
	}

	ep := findEntryPoint(module, entry, stage)
	if ep == nil {
		return nil, fmt.Errorf("%w: @%s fn %s", ErrEntryPoint, stage, entry)
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, err
	}
	words, err := toWords(code)
	if err != nil {
		return nil, err
	}

	return &Module{
		Entry:      entry,
		Stage:      stage,
		WGSL:       source,
		SPIRV:      words,
		Reflection: reflect(module, ep),
	}, nil
}

// EntryPoints lists the entry points of source for stage, in declaration
// order. It only parses; the source is not validated.
func EntryPoints(source string, stage Stage) ([]string, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, err
	}
	var names []string
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Stage == stage.ir() {
			names = append(names, module.EntryPoints[i].Name)
		}
	}
	return names, nil
}

func findEntryPoint(m *ir.Module, name string, stage Stage) *ir.EntryPoint {
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Name == name && ep.Stage == stage.ir() {
			return ep
		}
	}
	return nil
}

func toWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("shaderc: SPIR-V length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// Reflect validates source and reflects entry without generating code.
func Reflect(source, entry string, stage Stage) (Reflection, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return Reflection{}, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return Reflection{}, err
	}
	ep := findEntryPoint(module, entry, stage)
	if ep == nil {
		return Reflection{}, fmt.Errorf("%w: @%s fn %s", ErrEntryPoint, stage, entry)
	}
	return reflect(module, ep), nil
}
