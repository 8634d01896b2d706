package passrec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/fakegpu"
	"github.com/gogpu/passrec/internal/shaderc"
)

func TestArgumentOverride(t *testing.T) {
	dev, _ := newTestDevice(t)
	base := quadChain(dev, "fs_red")
	variant := base.WithPixelShader(shader("fs_blue"), Named("ps"), AsArgument())

	rv := variant.Execute()
	defer rv.Close()
	if got := pixelAt(t, rv, 0, 5, 5); got != blue {
		t.Errorf("variant pixel = %v, want %v", got, blue)
	}

	rb := base.Execute()
	defer rb.Close()
	if got := pixelAt(t, rb, 0, 5, 5); got != red {
		t.Errorf("base pixel = %v, want %v", got, red)
	}
}

func TestArgumentLastWins(t *testing.T) {
	dev, _ := newTestDevice(t)
	c := quadChain(dev, "fs_red").
		WithPixelShader(shader("fs_red"), Named("ps"), AsArgument()).
		WithPixelShader(shader("fs_blue"), Named("ps"), AsArgument())
	r := c.Execute()
	defer r.Close()
	if got := pixelAt(t, r, 0, 0, 0); got != blue {
		t.Errorf("pixel = %v, want %v", got, blue)
	}
}

func TestResolveOverrides(t *testing.T) {
	dev, _ := newTestDevice(t)
	c := quadChain(dev, "fs_red").
		WithPixelShader(shader("fs_blue"), Named("ps"), AsArgument()).
		WithImage(1, "unused.png", Named("nobody"), AsArgument())

	ops, err := resolveOverrides(c.nodes())
	if err != nil {
		t.Fatalf("resolveOverrides() = %v", err)
	}
	if len(ops) != 5 {
		t.Fatalf("len(ops) = %d, want 5 (arguments are not applied)", len(ops))
	}
	if got := ops[1].payload.(SetPixelShader).Entry; got != "fs_blue" {
		t.Errorf("ops[1] entry = %q, want fs_blue", got)
	}
	if !ops[1].slot.IsArgument {
		t.Error("ops[1] does not carry the argument's slot")
	}
}

func TestArgumentKeepsBindingPosition(t *testing.T) {
	dev, _ := newTestDevice(t)
	base := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_tint")).
		WithVertexBuffer(0, 8, quadCorners, Named("vb")).
		WithConstantBuffer(0, [4]float32{0, 1, 0, 1}, Named("cb")).
		WithTopology(gputypes.PrimitiveTopologyTriangleStrip).
		WithDraw(4, 1, 0, 0)

	c := base.
		WithConstantBuffer(7, [4]float32{1, 1, 0, 1}, Named("cb"), AsArgument()).
		WithVertexBuffer(3, 0, quadCorners, Named("vb"), AsArgument())
	r := c.Execute()
	defer r.Close()
	if got, want := pixelAt(t, r, 0, 10, 10), [4]byte{255, 255, 0, 255}; got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}

	ops, err := resolveOverrides(c.nodes())
	if err != nil {
		t.Fatalf("resolveOverrides() = %v", err)
	}
	tests := []struct {
		name string
		op   *node
		want Action
	}{
		{"vertex buffer", ops[2], BindVertexBuffer{Slot: 0, Stride: 8}},
		{"constant buffer", ops[3], BindConstantBuffer{Slot: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.op.payload != tt.want {
				t.Errorf("payload = %+v, want %+v", tt.op.payload, tt.want)
			}
			if !tt.op.slot.IsArgument {
				t.Error("node does not carry the argument's slot")
			}
		})
	}
}

func TestArgumentSamplerKeepsSlot(t *testing.T) {
	dev, _ := newTestDevice(t)
	desc := DefaultSampler()
	desc.MagFilter = gputypes.FilterModeNearest
	c := dev.Chain().
		WithSampler(2, DefaultSampler(), Named("samp")).
		WithSampler(5, desc, Named("samp"), AsArgument())

	ops, err := resolveOverrides(c.nodes())
	if err != nil {
		t.Fatalf("resolveOverrides() = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("len(ops) = %d, want 1", len(ops))
	}
	got := ops[0].payload.(BindSampler)
	if got.Slot != 2 {
		t.Errorf("Slot = %d, want 2", got.Slot)
	}
	if got.Desc.MagFilter != gputypes.FilterModeNearest {
		t.Errorf("MagFilter = %v, want %v", got.Desc.MagFilter, gputypes.FilterModeNearest)
	}
}

func TestArgumentTypeMismatch(t *testing.T) {
	dev, _ := newTestDevice(t)
	r := quadChain(dev, "fs_red").WithImage(1, "x.png", Named("ps"), AsArgument()).Execute()
	defer r.Close()
	if err := r.CheckRender(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("CheckRender() = %v, want ErrConfiguration", err)
	}
}

func TestCheckRenderIdempotent(t *testing.T) {
	dev, fake := newTestDevice(t)
	r := quadChain(dev, "fs_red").Execute()
	defer r.Close()

	if r.Rendered() {
		t.Fatal("Execute() rendered eagerly")
	}
	if err := r.CheckRender(); err != nil {
		t.Fatalf("CheckRender() = %v", err)
	}
	calls := fake.TotalCalls()
	if err := r.CheckRender(); err != nil {
		t.Fatalf("second CheckRender() = %v", err)
	}
	if got := fake.TotalCalls(); got != calls {
		t.Errorf("second CheckRender made %d backend calls", got-calls)
	}
	if got := dev.Stats().Evaluations; got != 1 {
		t.Errorf("Evaluations = %d, want 1", got)
	}
}

func TestFailureIsMemoized(t *testing.T) {
	dev, fake := newTestDevice(t)
	r := dev.Chain().WithDraw(3, 1, 0, 0).Execute()
	defer r.Close()

	err := r.CheckRender()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("CheckRender() = %v, want ErrConfiguration", err)
	}
	calls := fake.TotalCalls()
	if again := r.CheckRender(); again != err {
		t.Errorf("second CheckRender() = %v, want the first error", again)
	}
	if got := fake.TotalCalls(); got != calls {
		t.Errorf("second CheckRender made %d backend calls", got-calls)
	}
	if _, err := r.Data(0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Data(0) = %v, want ErrConfiguration", err)
	}
}

func TestContentAddressedResources(t *testing.T) {
	dev, fake := newTestDevice(t)

	r1 := quadChain(dev, "fs_red").Execute()
	defer r1.Close()
	if err := r1.CheckRender(); err != nil {
		t.Fatal(err)
	}
	buffers := fake.Calls("CreateBuffer")
	shaders := fake.Calls("CreateShaderModule")
	pipelines := fake.Calls("CreateRenderPipeline")
	if shaders != 2 || pipelines != 1 {
		t.Fatalf("first render: %d shaders, %d pipelines, want 2 and 1", shaders, pipelines)
	}

	// A separately built chain with equal data reuses every cached object.
	corners := append([]float32(nil), quadCorners...)
	r2 := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_red")).
		WithVertexBuffer(0, 8, corners).
		WithIndexBuffer([]uint16{0, 1, 2, 2, 1, 3}).
		WithDrawIndexed(6, 1, 0, 0, 0).
		Execute()
	defer r2.Close()
	if err := r2.CheckRender(); err != nil {
		t.Fatal(err)
	}

	if got := fake.Calls("CreateBuffer"); got != buffers {
		t.Errorf("CreateBuffer calls = %d, want %d", got, buffers)
	}
	if got := fake.Calls("CreateShaderModule"); got != shaders {
		t.Errorf("CreateShaderModule calls = %d, want %d", got, shaders)
	}
	if got := fake.Calls("CreateRenderPipeline"); got != pipelines {
		t.Errorf("CreateRenderPipeline calls = %d, want %d", got, pipelines)
	}
	if s := dev.Stats().Resources; s.Hits == 0 {
		t.Errorf("resource cache stats = %+v, want hits", s)
	}
}

func TestPipelineKeyedByState(t *testing.T) {
	dev, fake := newTestDevice(t)
	base := quadChain(dev, "fs_red")
	for _, c := range []Chain{
		base,
		base.WithBlendState(nil).WithDrawIndexed(6, 1, 0, 0, 0),
		base.WithTopology(gputypes.PrimitiveTopologyTriangleStrip).WithDraw(4, 1, 0, 0),
	} {
		r := c.Execute()
		if err := r.CheckRender(); err != nil {
			t.Fatal(err)
		}
		r.Close()
	}
	// alpha/list, replace/list and alpha/strip.
	if got := fake.Calls("CreateRenderPipeline"); got != 3 {
		t.Errorf("CreateRenderPipeline calls = %d, want 3", got)
	}
}

func TestEveryActionRenders(t *testing.T) {
	dev, fake := newTestDevice(t)
	dir := t.TempDir()
	img := filepath.Join(dir, "img.png")
	writeTestPNG(t, img)

	input := quadChain(dev, "fs_blue").Execute()
	defer input.Close()

	c := dev.Chain().
		WithDepth().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_tint")).
		WithVertexBuffer(0, 8, quadCorners).
		WithIndexBuffer(quadIndices).
		WithConstantBuffer(0, [4]float32{1, 1, 0, 1}).
		WithImage(1, img).
		WithSampler(2, DefaultSampler()).
		WithPassOutput(3, input, 0).
		WithTopology(gputypes.PrimitiveTopologyTriangleList).
		WithBlendState(nil).
		WithDepthStencilState(gputypes.DefaultDepthStencilState(gputypes.TextureFormatDepth32Float)).
		WithInputLayout([]InputElement{{Location: 0, Format: gputypes.VertexFormatFloat32x2, Slot: 0}}).
		WithDraw(4, 1, 0, 0).
		WithDrawIndexed(6, 1, 0, 0, 0)

	seen := make(map[ActionType]bool)
	for _, n := range c.nodes() {
		seen[n.payload.Type()] = true
	}
	if len(seen) != int(actionCount) {
		t.Fatalf("chain covers %d action types, want %d", len(seen), actionCount)
	}

	r := c.Execute()
	defer r.Close()
	if got, want := pixelAt(t, r, 0, 3, 3), [4]byte{255, 255, 0, 255}; got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
	if len(fake.Draws) < 2 {
		t.Errorf("Draws = %d, want both draws executed", len(fake.Draws))
	}
}

func TestConfigurationErrors(t *testing.T) {
	dev, _ := newTestDevice(t)
	tests := []struct {
		name  string
		chain func() Chain
	}{
		{"no vertex shader", func() Chain {
			return dev.Chain().WithPixelShader(shader("fs_red")).WithDraw(3, 1, 0, 0)
		}},
		{"no pixel shader", func() Chain {
			return dev.Chain().WithVertexShader(shader("vs_plain")).WithVertexBuffer(0, 8, quadCorners).WithDraw(3, 1, 0, 0)
		}},
		{"indexed draw without index buffer", func() Chain {
			return dev.Chain().
				WithVertexShader(shader("vs_plain")).
				WithPixelShader(shader("fs_red")).
				WithVertexBuffer(0, 8, quadCorners).
				WithDrawIndexed(6, 1, 0, 0, 0)
		}},
		{"missing vertex buffer", func() Chain {
			return dev.Chain().WithVertexShader(shader("vs_plain")).WithPixelShader(shader("fs_red")).WithDraw(3, 1, 0, 0)
		}},
		{"second input without buffer", func() Chain {
			return dev.Chain().
				WithVertexShader(shader("vs_uv")).
				WithPixelShader(shader("fs_red")).
				WithVertexBuffer(0, 8, quadCorners).
				WithDraw(3, 1, 0, 0)
		}},
		{"empty buffer", func() Chain {
			return dev.Chain().
				WithVertexShader(shader("vs_plain")).
				WithPixelShader(shader("fs_red")).
				WithVertexBuffer(0, 8, []byte{}).
				WithDraw(3, 1, 0, 0)
		}},
		{"bad index data", func() Chain {
			return quadChain(dev, "fs_red").WithIndexBuffer([]int{0, 1, 2}).WithDrawIndexed(3, 1, 0, 0, 0)
		}},
		{"unencodable buffer data", func() Chain {
			return quadChain(dev, "fs_red").WithVertexBuffer(0, 8, []any{1}).WithDraw(3, 1, 0, 0)
		}},
		{"texture not bound", func() Chain {
			return quadChain(dev, "fs_tex")
		}},
		{"sampler bound where texture expected", func() Chain {
			return dev.Chain().
				WithVertexShader(shader("vs_plain")).
				WithPixelShader(shader("fs_tex")).
				WithVertexBuffer(0, 8, quadCorners).
				WithSampler(1, DefaultSampler()).
				WithSampler(2, DefaultSampler()).
				WithDraw(4, 1, 0, 0)
		}},
		{"input layout misses a location", func() Chain {
			return dev.Chain().
				WithVertexShader(shader("vs_uv")).
				WithPixelShader(shader("fs_red")).
				WithVertexBuffer(0, 16, quadCorners).
				WithInputLayout([]InputElement{{Location: 0, Format: gputypes.VertexFormatFloat32x2}}).
				WithDraw(3, 1, 0, 0)
		}},
		{"input layout that failed to encode", func() Chain {
			c := dev.Chain().
				WithVertexShader(shader("vs_plain")).
				WithPixelShader(shader("fs_red")).
				WithVertexBuffer(0, 8, quadCorners)
			return c.push(SetInputLayout{}, errorSlot(configErrorf("layout not encodable")), nil).WithDraw(3, 1, 0, 0)
		}},
		{"zero size", func() Chain {
			return quadChain(dev, "fs_red").WithSize(0, 0)
		}},
		{"no color targets", func() Chain {
			return quadChain(dev, "fs_red").WithMRT()
		}},
		{"pass output without pass", func() Chain {
			return quadChain(dev, "fs_red").WithPassOutput(1, nil, 0)
		}},
		{"depth output of pass without depth", func() Chain {
			in := quadChain(dev, "fs_red").Execute()
			return quadChain(dev, "fs_red").WithPassOutput(1, in, DepthChannel)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.chain().Execute()
			defer r.Close()
			if err := r.CheckRender(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("CheckRender() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestFailedEvaluationLeaksNothing(t *testing.T) {
	dev, fake := newTestDevice(t)
	r := quadChain(dev, "fs_tex").Execute()
	if err := r.CheckRender(); err == nil {
		t.Fatal("CheckRender() = nil, want error")
	}
	r.Close()

	ok := quadChain(dev, "fs_red").Execute()
	if err := ok.CheckRender(); err != nil {
		t.Fatal(err)
	}
	ok.Close()
	if err := dev.pacer.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	// Only cached objects stay alive: two buffers, three shaders, two pipelines.
	if got := fake.LiveTextures(); got != 0 {
		t.Errorf("LiveTextures() = %d, want 0", got)
	}
	if got := fake.LiveBuffers(); got != 2 {
		t.Errorf("LiveBuffers() = %d, want 2", got)
	}
	if got := fake.LiveShaders(); got != 3 {
		t.Errorf("LiveShaders() = %d, want 3", got)
	}
	if got := fake.LivePipelines(); got != 2 {
		t.Errorf("LivePipelines() = %d, want 2", got)
	}
}

func TestFailedEvaluationDropsPendingUpload(t *testing.T) {
	dev, fake := newTestDevice(t)
	path := filepath.Join(t.TempDir(), "texels.png")
	src := writeTestPNG(t, path)

	base := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_tex")).
		WithVertexBuffer(0, 8, quadCorners).
		WithIndexBuffer(quadIndices).
		WithImage(1, path)

	// No sampler: the draw fails after the upload was recorded.
	failed := base.WithDrawIndexed(6, 1, 0, 0, 0).Execute()
	if err := failed.CheckRender(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("CheckRender() = %v, want ErrConfiguration", err)
	}
	failed.Close()

	r := base.WithSampler(2, DefaultSampler()).WithDrawIndexed(6, 1, 0, 0, 0).Execute()
	defer r.Close()
	c := src.RGBAAt(0, 0)
	want := [4]byte{c.R, c.G, c.B, c.A}
	if got := pixelAt(t, r, 0, 0, 0); got != want {
		t.Errorf("pixel (0,0) = %v, want texel %v", got, want)
	}
	if n := fake.Calls("CopyBufferToTexture"); n != 2 {
		t.Errorf("CopyBufferToTexture calls = %d, want 2", n)
	}
	if err := dev.pacer.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	// The texture of the failed pass is gone; the second upload is cached.
	if got := fake.LiveTextures(); got != 2 {
		t.Errorf("LiveTextures() = %d, want 2 (image and open result)", got)
	}
}

func TestEntryPointsAreCaseSensitive(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.PixelShaders["FS_RED"] = func(fakegpu.Fragment) [4]float32 { return [4]float32{0, 0, 1, 1} }
	path := filepath.Join(t.TempDir(), "Shaders.wgsl")
	src := testWGSL + `
@fragment
fn FS_RED(in: VertexOut) -> @location(0) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 1.0, 1.0);
}
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		entry string
		want  [4]byte
	}{
		{"fs_red", red},
		{"FS_RED", blue},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			r := dev.Chain().
				WithVertexShader(ShaderFile(path).Entry("vs_plain")).
				WithPixelShader(ShaderFile(path).Entry(tt.entry)).
				WithVertexBuffer(0, 8, quadCorners).
				WithIndexBuffer(quadIndices).
				WithDrawIndexed(6, 1, 0, 0, 0).
				Execute()
			defer r.Close()
			if got := pixelAt(t, r, 0, 0, 0); got != tt.want {
				t.Errorf("pixel = %v, want %v", got, tt.want)
			}
		})
	}
	if got := dev.Stats().Shaders.Len; got != 3 {
		t.Errorf("cached shaders = %d, want 3", got)
	}
}

func TestCompileError(t *testing.T) {
	dev, fake := newTestDevice(t)
	bad := ShaderCode("fn broken( {")
	c := dev.Chain().
		WithVertexShader(bad).
		WithPixelShader(shader("fs_red")).
		WithDraw(3, 1, 0, 0)

	r := c.Execute()
	defer r.Close()
	err := r.CheckRender()
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("CheckRender() = %v, want ErrCompilation", err)
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("CheckRender() = %T, want *CompileError", err)
	}
	if ce.Stage != "vertex" || ce.Entry != "main" {
		t.Errorf("CompileError = %+v, want vertex stage, entry main", ce)
	}
	if n := fake.Calls("CreateShaderModule"); n != 0 {
		t.Errorf("CreateShaderModule calls = %d, want 0", n)
	}

	// Failures are not cached.
	misses := dev.Stats().Shaders.Misses
	r2 := c.Execute()
	defer r2.Close()
	_ = r2.CheckRender()
	if got := dev.Stats().Shaders.Misses; got != misses+1 {
		t.Errorf("shader cache misses = %d, want %d", got, misses+1)
	}
}

func TestMissingEntryPoint(t *testing.T) {
	dev, _ := newTestDevice(t)
	r := quadChain(dev, "fs_red").WithPixelShader(shader("fs_missing"), Named("ps"), AsArgument()).Execute()
	defer r.Close()
	err := r.CheckRender()
	if !errors.Is(err, ErrCompilation) || !errors.Is(err, shaderc.ErrEntryPoint) {
		t.Errorf("CheckRender() = %v, want ErrCompilation wrapping ErrEntryPoint", err)
	}
}

func TestPassOutputChaining(t *testing.T) {
	dev, _ := newTestDevice(t)
	first := quadChain(dev, "fs_blue").Execute()

	second := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_tex")).
		WithVertexBuffer(0, 8, quadCorners).
		WithPassOutput(1, first, 0).
		WithSampler(2, DefaultSampler()).
		WithDraw(4, 1, 0, 0).
		Execute()
	defer second.Close()

	if got := pixelAt(t, second, 0, 7, 7); got != blue {
		t.Errorf("pixel = %v, want %v", got, blue)
	}
	// first rendered only as an input and was closed with the evaluation.
	if _, err := first.Data(0); !errors.Is(err, ErrDisposed) {
		t.Errorf("input Data(0) = %v, want ErrDisposed", err)
	}
}

func TestPassOutputKeptWhenRenderedFirst(t *testing.T) {
	dev, _ := newTestDevice(t)
	first := quadChain(dev, "fs_red").Execute()
	defer first.Close()
	if err := first.CheckRender(); err != nil {
		t.Fatal(err)
	}

	second := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_tex")).
		WithVertexBuffer(0, 8, quadCorners).
		WithPassOutput(1, first, 0).
		WithSampler(2, DefaultSampler()).
		WithDraw(4, 1, 0, 0).
		Execute()
	defer second.Close()

	if got := pixelAt(t, second, 0, 0, 0); got != red {
		t.Errorf("pixel = %v, want %v", got, red)
	}
	if got := pixelAt(t, first, 0, 0, 0); got != red {
		t.Errorf("input pixel = %v, want %v", got, red)
	}
}

func TestInvalidateRecompiles(t *testing.T) {
	dev, fake := newTestDevice(t)
	path := filepath.Join(t.TempDir(), "quad.wgsl")
	if err := os.WriteFile(path, []byte(testWGSL), 0o644); err != nil {
		t.Fatal(err)
	}
	c := dev.Chain().
		WithVertexShader(ShaderFile(path).Entry("vs_plain")).
		WithPixelShader(ShaderFile(path).Entry("fs_red")).
		WithVertexBuffer(0, 8, quadCorners).
		WithDraw(4, 1, 0, 0)

	render := func() {
		t.Helper()
		r := c.Execute()
		defer r.Close()
		if err := r.CheckRender(); err != nil {
			t.Fatal(err)
		}
	}

	render()
	render()
	if got := fake.Calls("CreateShaderModule"); got != 2 {
		t.Fatalf("CreateShaderModule calls = %d, want 2", got)
	}

	dev.Invalidate(path)
	render()
	if got := fake.Calls("CreateShaderModule"); got != 4 {
		t.Errorf("after Invalidate: CreateShaderModule calls = %d, want 4", got)
	}
	if got := fake.Calls("CreateRenderPipeline"); got != 2 {
		t.Errorf("after Invalidate: CreateRenderPipeline calls = %d, want 2", got)
	}
}

func TestEvictedObjectsOutliveTheirFrame(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.ManualCompletion = true

	path := filepath.Join(t.TempDir(), "corners.bin")
	data, _ := encodeData(quadCorners)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	c := dev.Chain().
		WithVertexShader(shader("vs_plain")).
		WithPixelShader(shader("fs_red")).
		WithVertexBufferFile(0, 8, path).
		WithDraw(4, 1, 0, 0)

	r1 := c.Execute()
	defer r1.Close()
	if err := r1.CheckRender(); err != nil {
		t.Fatal(err)
	}

	dev.Invalidate(path)
	r2 := c.Execute()
	defer r2.Close()
	if err := r2.CheckRender(); err != nil {
		t.Fatal(err)
	}
	if got := fake.Calls("CreateBuffer"); got != 2 {
		t.Fatalf("CreateBuffer calls = %d, want 2", got)
	}
	if got := fake.Calls("DestroyBuffer"); got != 0 {
		t.Fatalf("evicted buffer destroyed while the GPU may use it (%d DestroyBuffer)", got)
	}

	fake.Complete(fake.Submitted())
	dev.pacer.ReleaseCompleted()
	if got := fake.Calls("DestroyBuffer"); got != 1 {
		t.Errorf("DestroyBuffer calls = %d, want 1", got)
	}
}

func TestResourceCacheEvictionKeepsRendering(t *testing.T) {
	dev, _ := newTestDevice(t, WithResourceCacheSize(1))
	for i := 0; i < 3; i++ {
		r := quadChain(dev, "fs_red").Execute()
		if got := pixelAt(t, r, 0, 0, 0); got != red {
			t.Errorf("render %d pixel = %v, want %v", i, got, red)
		}
		r.Close()
	}
	if s := dev.Stats().Resources; s.Evictions == 0 || s.Len != 1 {
		t.Errorf("resource cache stats = %+v, want evictions and one entry", s)
	}
}

func TestBindGroupRingRecycles(t *testing.T) {
	dev, fake := newTestDevice(t, WithDescriptorRingSize(2))
	for i := 0; i < 4; i++ {
		r := dev.Chain().
			WithVertexShader(shader("vs_plain")).
			WithPixelShader(shader("fs_tint")).
			WithVertexBuffer(0, 8, quadCorners).
			WithConstantBuffer(0, [4]float32{float32(i), 0, 0, 1}).
			WithDraw(4, 1, 0, 0).
			Execute()
		if err := r.CheckRender(); err != nil {
			t.Fatal(err)
		}
		r.Close()
	}
	if got := fake.Calls("CreateBindGroup"); got != 4 {
		t.Errorf("CreateBindGroup calls = %d, want 4", got)
	}
	if err := dev.pacer.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if got := fake.Calls("DestroyBindGroup"); got != 2 {
		t.Errorf("DestroyBindGroup calls = %d, want 2", got)
	}
}

func TestVertexLayouts(t *testing.T) {
	inputs := []shaderc.InputParameter{
		{Name: "position", Location: 0, Format: gputypes.VertexFormatFloat32x2},
		{Name: "uv", Location: 1, Format: gputypes.VertexFormatFloat32x2},
	}

	t.Run("auto", func(t *testing.T) {
		got, err := vertexLayouts(inputs, nil, map[uint32]boundBuffer{0: {stride: 16}})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].ArrayStride != 16 {
			t.Errorf("slot 0 stride = %d, want the bound stride 16", got[0].ArrayStride)
		}
		if got[1].ArrayStride != 8 {
			t.Errorf("slot 1 stride = %d, want the format size 8", got[1].ArrayStride)
		}
		if a := got[1].Attributes; len(a) != 1 || a[0].ShaderLocation != 1 || a[0].Offset != 0 {
			t.Errorf("slot 1 attributes = %+v", a)
		}
	})

	t.Run("interleaved", func(t *testing.T) {
		elems := []InputElement{
			{Location: 0, Format: gputypes.VertexFormatFloat32x2, Slot: 0, Offset: 0},
			{Location: 1, Format: gputypes.VertexFormatFloat32x2, Slot: 0, Offset: 8},
		}
		got, err := vertexLayouts(inputs, elems, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || len(got[0].Attributes) != 2 {
			t.Fatalf("layouts = %+v, want one slot with two attributes", got)
		}
		if got[0].ArrayStride != 16 {
			t.Errorf("stride = %d, want 16", got[0].ArrayStride)
		}
	})

	t.Run("no inputs", func(t *testing.T) {
		got, err := vertexLayouts(nil, nil, nil)
		if err != nil || got != nil {
			t.Errorf("vertexLayouts(nil) = %v, %v", got, err)
		}
	})
}

func TestMergeBindings(t *testing.T) {
	vs := []shaderc.BoundResource{{Name: "params", Binding: 0, Kind: shaderc.ResourceUniform}}
	ps := []shaderc.BoundResource{
		{Name: "params", Binding: 0, Kind: shaderc.ResourceUniform},
		{Name: "tex", Binding: 1, Kind: shaderc.ResourceTexture},
	}
	got, err := mergeBindings(vs, ps)
	if err != nil {
		t.Fatal(err)
	}
	want := []gpucore.BindingLayout{
		{Binding: 0, Kind: gpucore.BindingUniform, Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment},
		{Binding: 1, Kind: gpucore.BindingTexture, Visibility: gputypes.ShaderStageFragment},
	}
	if len(got) != len(want) {
		t.Fatalf("mergeBindings() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mergeBindings()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	conflict := []shaderc.BoundResource{{Name: "s", Binding: 0, Kind: shaderc.ResourceSampler}}
	if _, err := mergeBindings(vs, conflict); !errors.Is(err, ErrConfiguration) {
		t.Errorf("conflicting kinds: err = %v, want ErrConfiguration", err)
	}
	group1 := []shaderc.BoundResource{{Name: "g", Group: 1, Binding: 0}}
	if _, err := mergeBindings(group1, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("group 1: err = %v, want ErrConfiguration", err)
	}
}
