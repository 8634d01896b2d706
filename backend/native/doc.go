// Package native implements gpucore.Backend on the gogpu/wgpu HAL.
//
// The backend maps gpucore's opaque IDs onto hal resources and records
// gpucore command lists into hal command encoders. Fence values are hal queue
// submission indices, so Completed is a non-blocking PollCompleted.
//
// # Opening a device
//
// Importing the package registers the "native" backend:
//
//	import _ "github.com/gogpu/passrec/backend/native"
//
//	b, err := backend.Open(backend.BackendNative)
//
// [Open] picks the most capable registered hal backend (Vulkan, Metal, DX12,
// GL, then the software rasterizer) and prefers discrete or integrated
// adapters. [FromProvider] wraps the device and queue of a host application
// instead; the host keeps ownership of them.
//
// # Resource layout
//
// Every render pipeline owns one bind group layout (group 0) and a pipeline
// layout built from it. Bind groups are created against the pipeline they
// will be used with.
//
// # Texture state
//
// The adapter tracks the last usage each texture was transitioned to and
// emits hal texture barriers when a recorded command needs another usage:
// render attachment for passes, copy source and destination for transfers,
// and texture binding for sampling.
package native
