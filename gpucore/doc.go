// Package gpucore defines the graphics backend capability that passrec
// records and replays render passes against.
//
// The [Backend] interface abstracts a WebGPU-shaped device and queue behind
// opaque IDs, so the evaluator, caches and frame pacer never touch a concrete
// graphics API. The module ships one implementation over gogpu/wgpu HAL in
// package backend/native; tests use an in-memory fake.
//
// # Resource Management
//
// GPU resources are addressed by opaque IDs ([BufferID], [TextureID], etc.).
// Every Create* method has a matching Destroy* method. IDs are never reused
// while a resource is alive, and [InvalidID] is never returned on success.
// Destroying a resource the GPU may still read is undefined behavior; callers
// route releases through the frame pacer so they happen only after the
// fence value of the last submission that used them has completed.
//
// # Commands
//
// Work is recorded into command lists. A list is obtained from
// [CommandQueue.CreateCommandList], recorded through the [Encoder] returned by
// [CommandQueue.Encoder], and handed to [CommandQueue.Submit], which returns a
// monotonically increasing fence value. [CommandQueue.Completed] reports the
// highest value the GPU has finished; [CommandQueue.Wait] blocks until a value
// completes or a timeout elapses.
//
//	list, _ := b.CreateCommandList("frame 0")
//	enc, _ := b.Encoder(list)
//	pass := enc.BeginRenderPass(&gpucore.RenderPassDesc{...})
//	pass.SetPipeline(pipeline)
//	pass.DrawIndexed(6, 1, 0, 0, 0)
//	pass.End()
//	value, _ := b.Submit(list)
//	_, _ = b.Wait(value, time.Second)
package gpucore
