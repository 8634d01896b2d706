// Command passrec renders a WGSL fragment shader over a full-screen triangle
// and saves the result as an image or an animated GIF.
//
// The fragment shader may declare a uniform block at @group(0) @binding(0)
// laid out like
//
//	struct Params {
//	    resolution: vec2<f32>,
//	    time: f32,
//	    frame: u32,
//	}
//
// and read the interpolated @location(0) uv in [0, 1].
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/passrec"
)

const fullscreenVS = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_fullscreen(@builtin(vertex_index) i: u32) -> VertexOutput {
    let uv = vec2<f32>(f32((i << 1u) & 2u), f32(i & 2u));
    var out: VertexOutput;
    out.position = vec4<f32>(uv * 2.0 - 1.0, 0.0, 1.0);
    out.uv = vec2<f32>(uv.x, 1.0 - uv.y);
    return out;
}
`

// params mirrors the Params uniform block.
type params struct {
	Resolution [2]float32
	Time       float32
	Frame      uint32
}

func main() {
	var (
		shader   = flag.String("shader", "", "WGSL file with the fragment shader")
		entry    = flag.String("entry", "main", "fragment entry point")
		width    = flag.Uint("width", 512, "image width")
		height   = flag.Uint("height", 512, "image height")
		output   = flag.String("output", "out.png", "output file (.png, .jpg, .bmp, .tiff, .gif)")
		backend  = flag.String("backend", "", "backend name (default: best available)")
		frames   = flag.Int("frames", 0, "render an animated GIF with this many frames")
		delay    = flag.Duration("delay", 40*time.Millisecond, "GIF frame delay")
		watch    = flag.Bool("watch", false, "re-render whenever the shader file changes")
		interval = flag.Duration("interval", 250*time.Millisecond, "re-render interval with -watch")
	)
	flag.Parse()
	if *shader == "" {
		flag.Usage()
		os.Exit(2)
	}

	dev, err := passrec.OpenDevice(*backend)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer dev.Close()

	base := dev.Chain().WithSize(uint32(*width), uint32(*height))
	build := func(frame int, c passrec.Chain) passrec.Chain {
		w, h := c.Size()
		return c.
			WithVertexShader(passrec.ShaderCode(fullscreenVS).Entry("vs_fullscreen")).
			WithPixelShader(passrec.ShaderFile(*shader).Entry(*entry)).
			WithConstantBuffer(0, params{
				Resolution: [2]float32{float32(w), float32(h)},
				Time:       float32(frame) * float32(delay.Seconds()),
				Frame:      uint32(frame),
			}, passrec.Named("params")).
			WithDraw(3, 1, 0, 0)
	}

	render := func() error {
		if *frames > 0 {
			return base.Animate(*output, *frames, *delay, build)
		}
		return build(0, base).Save(*output, 0)
	}

	if err := render(); err != nil {
		log.Printf("render: %v", err)
		if !*watch {
			os.Exit(1)
		}
	} else {
		log.Printf("saved %s (%dx%d)", *output, *width, *height)
	}
	if !*watch {
		return
	}

	if err := dev.Watch(*shader); err != nil {
		log.Fatalf("watch: %v", err)
	}
	defer dev.StopWatching()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	last := dev.Stats().Shaders.Misses
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := render(); err != nil {
				log.Printf("render: %v", err)
				continue
			}
			if misses := dev.Stats().Shaders.Misses; misses != last {
				last = misses
				log.Printf("reloaded %s", *shader)
			}
		}
	}
}
