// Package shaderc compiles WGSL shaders with naga and reflects the parts of
// their interface that pipeline creation needs: vertex inputs, color
// outputs and bound resources.
//
//	mod, err := shaderc.Compile(src, "vs_main", shaderc.StageVertex)
//	for _, in := range mod.Reflection.Inputs {
//	    fmt.Println(in.Name, in.Location, in.Format)
//	}
//
// Compile validates the whole source, so a module that compiles for one
// entry point compiles for every other entry point in the same file.
package shaderc
