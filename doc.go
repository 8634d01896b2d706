// Package passrec records and replays GPU render passes.
//
// # Overview
//
// A pass is described by a Chain: an immutable, structurally shared list of
// actions such as "set the vertex shader", "bind this buffer" or "draw".
// Extending a chain never copies it, so a base pipeline can be shared by
// many variants. Executing a chain returns a PassResult that renders lazily,
// the first time its output is read.
//
// Every GPU object derived from a chain is cached on the Device by content
// or by file path: compiled shaders, buffers, textures, samplers and
// pipeline-state objects. Evaluating the same chain twice creates nothing
// new. Objects that fall out of the caches are released only after the GPU
// has finished the frames that used them.
//
// # Quick Start
//
//	dev, err := passrec.OpenDevice("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	quad := dev.Chain().
//		WithVertexShader(passrec.ShaderFile("quad.wgsl").Entry("vs_main")).
//		WithPixelShader(passrec.ShaderFile("quad.wgsl").Entry("fs_main")).
//		WithVertexBuffer(0, 8, corners).
//		WithIndexBuffer([]uint16{0, 1, 2, 2, 1, 3}).
//		WithImage(0, "photo.png").
//		WithSampler(1, passrec.DefaultSampler()).
//		WithDrawIndexed(6, 1, 0, 0, 0)
//
//	if err := quad.Save("out.png", 0); err != nil {
//		log.Fatal(err)
//	}
//
// # Arguments
//
// A node built with Named can be replaced later without rebuilding the
// chain: append a node of the same action type with Named and AsArgument.
//
//	base := dev.Chain().WithImage(0, "a.png", passrec.Named("src"))
//	variant := base.WithImage(0, "b.png", passrec.Named("src"), passrec.AsArgument())
//
// # Pass Graphs
//
// WithPassOutput samples the output of another PassResult. Passes form a
// DAG that is rendered on demand; a pass rendered only as an input is closed
// when the pass consuming it finishes.
//
// # Shaders
//
// Shaders are WGSL. They are compiled to SPIR-V and reflected with
// github.com/gogpu/naga. Resources live in @group(0); the slot argument of
// the binding builders is the @binding number.
//
// # Hot Reload
//
// Device.Watch observes shader, image and buffer files and drops everything
// derived from a file when it changes. The next evaluation rebuilds it.
//
// # Concurrency
//
// A Device and everything created from it belong to one goroutine. Only
// Device.Invalidate may be called from others.
package passrec

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = ""
)
