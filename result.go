package passrec

import (
	"bytes"
	"fmt"
	"html"
	"image"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/imageio"
)

// DepthChannel selects the depth target of a pass in WithPassOutput and
// PassResult.Data.
const DepthChannel = -1

type renderTarget struct {
	texture gpucore.TextureID
	view    gpucore.TextureViewID
	format  gputypes.TextureFormat
}

// renderTargets are the textures one evaluation renders into.
type renderTargets struct {
	color  []renderTarget
	depth  *renderTarget
	width  uint32
	height uint32
}

func (d *Device) createTargets(c Chain) (*renderTargets, error) {
	if c.width == 0 || c.height == 0 {
		return nil, configErrorf("pass size %dx%d", c.width, c.height)
	}
	if len(c.formats) == 0 {
		return nil, configErrorf("pass has no color targets")
	}
	t := &renderTargets{width: c.width, height: c.height}
	create := func(label string, format gputypes.TextureFormat, usage gputypes.TextureUsage) (renderTarget, error) {
		tex, err := d.backend.CreateTexture(&gpucore.TextureDesc{
			Label:  label,
			Width:  c.width,
			Height: c.height,
			Format: format,
			Usage:  usage,
		})
		if err != nil {
			return renderTarget{}, fmt.Errorf("passrec: create %s: %w", label, err)
		}
		view, err := d.backend.CreateTextureView(tex, &gpucore.TextureViewDesc{Label: label})
		if err != nil {
			d.backend.DestroyTexture(tex)
			return renderTarget{}, fmt.Errorf("passrec: create %s view: %w", label, err)
		}
		return renderTarget{texture: tex, view: view, format: format}, nil
	}

	for i, f := range c.formats {
		rt, err := create(fmt.Sprintf("%s target %d", c.describe(), i), f,
			gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopySrc)
		if err != nil {
			t.release(d)
			return nil, err
		}
		t.color = append(t.color, rt)
	}
	if c.depth != gputypes.TextureFormatUndefined {
		usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
		if copyableDepth(c.depth) {
			usage |= gputypes.TextureUsageCopySrc
		}
		rt, err := create(c.describe()+" depth", c.depth, usage)
		if err != nil {
			t.release(d)
			return nil, err
		}
		t.depth = &rt
	}
	return t, nil
}

// copyableDepth reports whether the depth aspect of format can be copied to
// a buffer.
func copyableDepth(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth32Float || f == gputypes.TextureFormatDepth16Unorm
}

func (t *renderTargets) passDesc(c Chain) *gpucore.RenderPassDesc {
	desc := &gpucore.RenderPassDesc{Label: c.describe()}
	for _, rt := range t.color {
		desc.Color = append(desc.Color, gpucore.ColorAttachment{View: rt.view, Clear: c.clear})
	}
	if t.depth != nil {
		desc.Depth = &gpucore.DepthAttachment{
			View:       t.depth.view,
			DepthClear: 1,
			HasStencil: t.depth.format.HasStencil(),
		}
	}
	return desc
}

// release destroys the targets once the GPU is done with them.
func (t *renderTargets) release(d *Device) {
	all := t.color
	if t.depth != nil {
		all = append(all, *t.depth)
	}
	for _, rt := range all {
		rt := rt
		d.pacer.Retain(func() {
			d.backend.DestroyTextureView(rt.view)
			d.backend.DestroyTexture(rt.texture)
		})
	}
	t.color, t.depth = nil, nil
}

// PassResult is the lazily rendered output of a chain.
//
// The chain is evaluated the first time the result is read, or when
// CheckRender is called. A result that failed to render keeps returning the
// same error. Close releases the result's textures; afterwards every accessor
// returns ErrDisposed.
type PassResult struct {
	dev   *Device
	chain Chain

	rendered bool
	disposed bool
	err      error

	targets *renderTargets
}

// Chain returns the chain the result renders.
func (r *PassResult) Chain() Chain { return r.chain }

// Rendered reports whether the chain has been evaluated successfully.
func (r *PassResult) Rendered() bool { return r.rendered }

// CheckRender evaluates the chain if it has not been evaluated yet.
// Calling it again does no work.
func (r *PassResult) CheckRender() error {
	switch {
	case r.disposed:
		return ErrDisposed
	case r.rendered:
		return nil
	case r.err != nil:
		return r.err
	}
	t, err := r.dev.evaluate(r.chain)
	if err != nil {
		r.err = err
		r.dev.log.Warn("passrec: pass failed", "pass", r.chain.describe(), "err", err)
		return err
	}
	r.targets = t
	r.rendered = true
	return nil
}

// target returns the texture of a channel, the format to view it with and
// the aspect to read.
func (r *PassResult) target(channel int) (gpucore.TextureID, gputypes.TextureFormat, gputypes.TextureAspect, error) {
	if r.disposed {
		return gpucore.InvalidID, 0, 0, ErrDisposed
	}
	if channel == DepthChannel {
		if r.targets.depth == nil {
			return gpucore.InvalidID, 0, 0, configErrorf("%s has no depth target", r.chain.describe())
		}
		return r.targets.depth.texture, r.targets.depth.format, gputypes.TextureAspectDepthOnly, nil
	}
	if channel < 0 || channel >= len(r.targets.color) {
		return gpucore.InvalidID, 0, 0, configErrorf("%s has no color target %d", r.chain.describe(), channel)
	}
	rt := r.targets.color[channel]
	return rt.texture, rt.format, gputypes.TextureAspectAll, nil
}

// Size returns the size of the result's targets.
func (r *PassResult) Size() (width, height uint32) { return r.chain.width, r.chain.height }

// Format returns the texture format of channel. DepthChannel selects the
// depth target.
func (r *PassResult) Format(channel int) (gputypes.TextureFormat, error) {
	if err := r.CheckRender(); err != nil {
		return gputypes.TextureFormatUndefined, err
	}
	_, f, _, err := r.target(channel)
	return f, err
}

// Data renders the chain if needed and reads back channel as tightly packed
// rows. DepthChannel reads the depth target.
func (r *PassResult) Data(channel int) ([]byte, error) {
	if err := r.CheckRender(); err != nil {
		return nil, err
	}
	tex, format, aspect, err := r.target(channel)
	if err != nil {
		return nil, err
	}
	if aspect == gputypes.TextureAspectDepthOnly && !copyableDepth(format) {
		return nil, configErrorf("depth format %v cannot be read back", format)
	}
	bpp := gpucore.BytesPerPixel(format)
	if bpp == 0 {
		return nil, configErrorf("format %v cannot be read back", format)
	}

	d := r.dev
	w, h := r.chain.width, r.chain.height
	row := w * bpp
	pitch := gpucore.AlignedPitch(row)
	size := uint64(pitch) * uint64(h)
	off, err := d.alloc(d.readback, size)
	if err != nil {
		return nil, err
	}

	enc, err := d.pacer.Encoder()
	if err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}
	enc.CopyTextureToBuffer(tex, aspect, d.readback.buffer, gpucore.ImageLayout{Offset: off, BytesPerRow: pitch}, w, h)
	if _, err := d.pacer.Submit(); err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}
	if err := d.pacer.WaitIdle(); err != nil {
		return nil, fmt.Errorf("passrec: %w", err)
	}

	raw, err := d.backend.ReadBuffer(d.readback.buffer, off, size)
	if err != nil {
		return nil, fmt.Errorf("passrec: read back: %w", err)
	}
	if pitch == row {
		return raw, nil
	}
	out := make([]byte, int(row)*int(h))
	for y := 0; y < int(h); y++ {
		copy(out[y*int(row):(y+1)*int(row)], raw[y*int(pitch):])
	}
	return out, nil
}

// Image reads back channel as an image. Color formats decode to RGBA or
// Gray images, depth to Gray16.
func (r *PassResult) Image(channel int) (image.Image, error) {
	pix, err := r.Data(channel)
	if err != nil {
		return nil, err
	}
	_, format, _, err := r.target(channel)
	if err != nil {
		return nil, err
	}
	return imageio.FromPixels(pix, int(r.chain.width), int(r.chain.height), format)
}

// Save writes channel to path. The extension picks the encoding.
func (r *PassResult) Save(path string, channel int) error {
	img, err := r.Image(channel)
	if err != nil {
		return err
	}
	return imageio.Save(path, img)
}

// SaveDepth writes the depth target to path as a 16-bit grayscale image.
func (r *PassResult) SaveDepth(path string) error {
	return r.Save(path, DepthChannel)
}

// HTML writes channel as a PNG under the device's cache directory, named by
// its content hash, and returns an <img> tag that displays it.
func (r *PassResult) HTML(channel int) (string, error) {
	img, err := r.Image(channel)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := imageio.EncodePNG(&buf, img); err != nil {
		return "", err
	}
	dir := filepath.Join(r.dev.opts.cacheDir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("passrec: %w", err)
	}
	path := filepath.Join(dir, ContentKey(buf.Bytes())+".png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("passrec: %w", err)
	}
	return fmt.Sprintf(`<img class="result-preview" style="padding:10px" src="%s">`,
		html.EscapeString(filepath.ToSlash(path))), nil
}

// Close releases the result's textures. Passes that sample it and have not
// rendered yet will fail. Close is idempotent.
func (r *PassResult) Close() error {
	if r.disposed {
		return nil
	}
	r.disposed = true
	if r.targets != nil && !r.dev.closed {
		r.targets.release(r.dev)
	}
	r.targets = nil
	return nil
}
