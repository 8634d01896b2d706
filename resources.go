package passrec

import (
	"fmt"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/passrec/internal/imageio"
	"github.com/gogpu/passrec/internal/shaderc"
)

// readSlot returns the bytes a slot refers to.
func readSlot(s *ParameterSlot) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	switch s.Kind {
	case SlotInline:
		return s.Data, nil
	case SlotFile:
		b, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("passrec: %w", err)
		}
		return b, nil
	default:
		return nil, configErrorf("%v slot %s holds no bytes", s.Kind, s.describe())
	}
}

func objectLabel(s *ParameterSlot, kind string) string {
	if s.Label != "" {
		return s.Label
	}
	return kind + " " + s.describe()
}

// buffer returns the buffer holding the slot's bytes. Buffers are keyed by
// content or path, so identical data bound anywhere shares one buffer.
func (d *Device) buffer(s *ParameterSlot) (*cachedObject, error) {
	if s.err != nil {
		return nil, s.err
	}
	return d.resources.Get("buf|"+s.Shortcut, func(string) (*cachedObject, error) {
		data, err := readSlot(s)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, configErrorf("buffer %s is empty", s.describe())
		}
		size := uint64(len(padTo16(data)))
		id, err := d.backend.CreateBuffer(&gpucore.BufferDesc{
			Label: objectLabel(s, "buffer"),
			Size:  size,
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageIndex |
				gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("passrec: create buffer: %w", err)
		}
		if err := d.backend.WriteBuffer(id, 0, data); err != nil {
			d.backend.DestroyBuffer(id)
			return nil, fmt.Errorf("passrec: write buffer: %w", err)
		}
		return &cachedObject{
			buffer:  id,
			size:    size,
			release: func() { d.backend.DestroyBuffer(id) },
		}, nil
	})
}

// texture returns the sampled texture of an image file, uploading it through
// the upload ring on first use. The upload is recorded into enc, so the
// returned key must be invalidated if enc's list is discarded; key is empty
// when the texture was already cached.
func (d *Device) texture(enc gpucore.Encoder, s *ParameterSlot) (obj *cachedObject, key string, err error) {
	if s.err != nil {
		return nil, "", s.err
	}
	if s.Kind != SlotFile {
		return nil, "", configErrorf("image slot %s is not a file", s.describe())
	}
	var uploaded bool
	key = "tex|" + s.Shortcut
	obj, err = d.resources.Get(key, func(string) (*cachedObject, error) {
		img, err := imageio.LoadRGBA(s.Path)
		if err != nil {
			return nil, fmt.Errorf("passrec: load image: %w", err)
		}
		w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())
		if w == 0 || h == 0 {
			return nil, configErrorf("image %s is empty", s.Path)
		}

		pitch := gpucore.AlignedPitch(w * 4)
		off, err := d.alloc(d.upload, uint64(pitch)*uint64(h))
		if err != nil {
			return nil, err
		}
		staged := make([]byte, int(pitch)*int(h))
		for y := 0; y < int(h); y++ {
			copy(staged[y*int(pitch):], img.Pix[y*img.Stride:y*img.Stride+int(w)*4])
		}
		if err := d.backend.WriteBuffer(d.upload.buffer, off, staged); err != nil {
			return nil, fmt.Errorf("passrec: stage image: %w", err)
		}

		tex, err := d.backend.CreateTexture(&gpucore.TextureDesc{
			Label:  objectLabel(s, "image"),
			Width:  w,
			Height: h,
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("passrec: create texture: %w", err)
		}
		view, err := d.backend.CreateTextureView(tex, &gpucore.TextureViewDesc{Label: objectLabel(s, "image view")})
		if err != nil {
			d.backend.DestroyTexture(tex)
			return nil, fmt.Errorf("passrec: create texture view: %w", err)
		}
		enc.CopyBufferToTexture(d.upload.buffer, gpucore.ImageLayout{Offset: off, BytesPerRow: pitch}, tex, w, h)
		uploaded = true

		d.log.Debug("passrec: image uploaded", "path", s.Path, "width", w, "height", h)
		return &cachedObject{
			texture: tex,
			view:    view,
			width:   w,
			height:  h,
			release: func() {
				d.backend.DestroyTextureView(view)
				d.backend.DestroyTexture(tex)
			},
		}, nil
	})
	if err != nil || !uploaded {
		key = ""
	}
	return obj, key, err
}

// sampler returns a sampler for desc. Samplers live in their own cache
// since they never derive from files.
func (d *Device) sampler(s *ParameterSlot, desc gputypes.SamplerDescriptor) (*cachedObject, error) {
	key := ContentKey([]byte(fmt.Sprintf("%+v", desc)))
	return d.samplers.Get(key, func(string) (*cachedObject, error) {
		if desc.Label == "" {
			desc.Label = objectLabel(s, "sampler")
		}
		id, err := d.backend.CreateSampler(&desc)
		if err != nil {
			return nil, fmt.Errorf("passrec: create sampler: %w", err)
		}
		return &cachedObject{
			sampler: id,
			release: func() { d.backend.DestroySampler(id) },
		}, nil
	})
}

// shader compiles entry of the slot's source for stage. Failures are not
// cached.
func (d *Device) shader(n *node, entry string, stage shaderc.Stage) (*shaderObject, error) {
	s := n.slot
	if s.err != nil {
		return nil, s.err
	}
	key := s.Shortcut + "|" + entry + "|" + stage.String()
	return d.shaders.Get(key, func(string) (*shaderObject, error) {
		src, err := readSlot(s)
		if err != nil {
			return nil, err
		}
		m, err := shaderc.Compile(string(src), entry, stage)
		if err != nil {
			return nil, &CompileError{Path: s.describe(), Entry: entry, Stage: stage.String(), Err: err}
		}
		id, err := d.backend.CreateShaderModule(&gpucore.ShaderModuleDesc{
			Label: fmt.Sprintf("%s %s", objectLabel(s, stage.String()), entry),
			WGSL:  m.WGSL,
			SPIRV: m.SPIRV,
		})
		if err != nil {
			return nil, &CompileError{Path: s.describe(), Entry: entry, Stage: stage.String(), Err: err}
		}
		d.log.Debug("passrec: shader compiled", "source", s.describe(), "entry", entry, "stage", stage)
		return &shaderObject{
			module:     id,
			entry:      entry,
			reflection: m.Reflection,
			release:    func() { d.backend.DestroyShaderModule(id) },
		}, nil
	})
}
