package gpucore

import (
	"time"

	"github.com/gogpu/gputypes"
)

// ResourceFactory creates and destroys GPU resources.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use by submitted work is undefined behavior
//   - IDs become invalid after destruction
type ResourceFactory interface {
	// CreateBuffer allocates a buffer of desc.Size bytes.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// WriteBuffer copies data into the buffer at offset.
	// The write is ordered before any work submitted afterwards.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer maps a MapRead buffer and copies size bytes starting at offset.
	// The caller must make sure the GPU finished writing the range.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// CreateTexture allocates a 2D texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// CreateTextureView creates a view usable as render target or shader input.
	CreateTextureView(texture TextureID, desc *TextureViewDesc) (TextureViewID, error)

	// DestroyTextureView releases a view.
	DestroyTextureView(id TextureViewID)

	// CreateSampler creates a sampler.
	CreateSampler(desc *gputypes.SamplerDescriptor) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)

	// CreateShaderModule creates a shader module from validated source.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateRenderPipeline compiles a pipeline-state object. The pipeline owns
	// the resource layout described by desc.Bindings.
	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a pipeline-state object.
	DestroyRenderPipeline(id RenderPipelineID)

	// CreateBindGroup binds resources against the layout of pipeline.
	CreateBindGroup(pipeline RenderPipelineID, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)
}

// CommandQueue records and submits work and tracks its completion.
type CommandQueue interface {
	// CreateCommandList creates a resettable command list.
	CreateCommandList(label string) (CommandListID, error)

	// DestroyCommandList releases a command list.
	DestroyCommandList(id CommandListID)

	// ResetCommandList discards everything recorded into the list and frees
	// the command buffers of its earlier submissions. The GPU must have
	// completed those submissions.
	ResetCommandList(id CommandListID) error

	// Encoder returns the recorder for the list, starting a new recording if
	// the list is idle.
	Encoder(id CommandListID) (Encoder, error)

	// Submit closes the list's recording and submits it. It returns the fence
	// value that Completed reaches once the GPU has executed it.
	Submit(id CommandListID) (uint64, error)

	// Completed returns the highest fence value the GPU has finished.
	// Non-blocking.
	Completed() uint64

	// Wait blocks until Completed reaches value or timeout elapses.
	// It reports whether the value was reached.
	Wait(value uint64, timeout time.Duration) (bool, error)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}

// Backend is a complete graphics backend.
type Backend interface {
	ResourceFactory
	CommandQueue

	// Name identifies the backend and adapter, for logs.
	Name() string

	// Close releases the device. All resources must have been destroyed.
	Close() error
}

// Encoder records commands into a command list.
type Encoder interface {
	// CopyBufferToTexture uploads a width x height region from a buffer into
	// the texture's top-left corner.
	CopyBufferToTexture(src BufferID, layout ImageLayout, dst TextureID, width, height uint32)

	// CopyTextureToBuffer copies a width x height region of one texture aspect
	// into a buffer.
	CopyTextureToBuffer(src TextureID, aspect gputypes.TextureAspect, dst BufferID, layout ImageLayout, width, height uint32)

	// PrepareSampled makes textures readable by shaders in the next render
	// pass. Call it outside a render pass.
	PrepareSampled(textures []TextureID)

	// BeginRenderPass starts a render pass. The pass must be ended before any
	// other encoder method is called.
	BeginRenderPass(desc *RenderPassDesc) RenderPass
}

// RenderPass records draw commands inside a render pass.
type RenderPass interface {
	SetPipeline(pipeline RenderPipelineID)
	SetBindGroup(index uint32, group BindGroupID)
	SetVertexBuffer(slot uint32, buffer BufferID, offset uint64)
	SetIndexBuffer(buffer BufferID, format gputypes.IndexFormat, offset uint64)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)

	// End finishes the pass. The pass cannot be used afterwards.
	End()
}
