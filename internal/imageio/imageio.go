package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	// Decoders registered with image.Decode.
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for pixel formats or file extensions
// this package cannot handle.
var ErrUnsupportedFormat = errors.New("imageio: unsupported format")

// JPEGQuality is the quality used when saving .jpg files.
const JPEGQuality = 95

// LoadRGBA decodes the image at path into RGBA8 with a zero origin.
func LoadRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeRGBA(f)
}

// DecodeRGBA decodes any registered image format into RGBA8 with a zero
// origin.
func DecodeRGBA(r io.Reader) (*image.RGBA, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return ToRGBA(src), nil
}

// ToRGBA returns img as RGBA8 with a zero origin, converting if needed.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Save encodes img to path, choosing the encoder from the extension:
// .png, .bmp, .tif, .tiff, .jpg, .jpeg or .gif.
func Save(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	enc, ok := encoders[ext]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := enc(f, img); err != nil {
		f.Close()
		return fmt.Errorf("imageio: encode %s: %w", path, err)
	}
	return f.Close()
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

var encoders = map[string]func(io.Writer, image.Image) error{
	".png":  EncodePNG,
	".bmp":  bmp.Encode,
	".tif":  encodeTIFF,
	".tiff": encodeTIFF,
	".jpg":  encodeJPEG,
	".jpeg": encodeJPEG,
	".gif":  encodeGIF,
}

func encodeTIFF(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
}

func encodeGIF(w io.Writer, img image.Image) error {
	return gif.Encode(w, img, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
}

// FromPixels interprets tightly packed texel data of format as an image.
// Color formats become RGBA8 (float channels are clamped to [0, 1]); depth
// formats become 16-bit gray.
func FromPixels(pix []byte, width, height int, format gputypes.TextureFormat) (image.Image, error) {
	bpp, ok := bytesPerPixel(format)
	if !ok {
		return nil, fmt.Errorf("%w: texture format %v", ErrUnsupportedFormat, format)
	}
	if need := width * height * bpp; len(pix) < need {
		return nil, fmt.Errorf("imageio: %d bytes for %dx%d %v, need %d", len(pix), width, height, format, need)
	}
	rect := image.Rect(0, 0, width, height)

	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		img := image.NewRGBA(rect)
		copy(img.Pix, pix)
		return img, nil

	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		img := image.NewRGBA(rect)
		for i := 0; i < width*height*4; i += 4 {
			img.Pix[i+0] = pix[i+2]
			img.Pix[i+1] = pix[i+1]
			img.Pix[i+2] = pix[i+0]
			img.Pix[i+3] = pix[i+3]
		}
		return img, nil

	case gputypes.TextureFormatR8Unorm:
		img := image.NewGray(rect)
		copy(img.Pix, pix)
		return img, nil

	case gputypes.TextureFormatR32Float:
		img := image.NewGray(rect)
		for i := range img.Pix {
			img.Pix[i] = unorm8(float32At(pix, i))
		}
		return img, nil

	case gputypes.TextureFormatRGBA16Float:
		img := image.NewRGBA(rect)
		for i := range img.Pix {
			img.Pix[i] = unorm8(halfAt(pix, i))
		}
		return img, nil

	case gputypes.TextureFormatRGBA32Float:
		img := image.NewRGBA(rect)
		for i := range img.Pix {
			img.Pix[i] = unorm8(float32At(pix, i))
		}
		return img, nil

	case gputypes.TextureFormatDepth32Float:
		img := image.NewGray16(rect)
		for i := 0; i < width*height; i++ {
			img.SetGray16(i%width, i/width, color.Gray16{Y: unorm16(float32At(pix, i))})
		}
		return img, nil

	case gputypes.TextureFormatDepth16Unorm:
		img := image.NewGray16(rect)
		for i := 0; i < width*height; i++ {
			// Gray16 is big-endian, texels are little-endian.
			img.Pix[2*i] = pix[2*i+1]
			img.Pix[2*i+1] = pix[2*i]
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: texture format %v", ErrUnsupportedFormat, format)
}

func bytesPerPixel(format gputypes.TextureFormat) (int, bool) {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1, true
	case gputypes.TextureFormatDepth16Unorm:
		return 2, true
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float:
		return 4, true
	case gputypes.TextureFormatRGBA16Float:
		return 8, true
	case gputypes.TextureFormatRGBA32Float:
		return 16, true
	}
	return 0, false
}

func float32At(pix []byte, i int) float32 {
	b := pix[4*i:]
	return math.Float32frombits(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func halfAt(pix []byte, i int) float32 {
	h := uint16(pix[2*i]) | uint16(pix[2*i+1])<<8
	return halfToFloat(h)
}

func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff
	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal.
		f := float32(mant) / 1024 / 16384
		if sign != 0 {
			return -f
		}
		return f
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
}

func unorm8(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func unorm16(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 65535
	}
	return uint16(v*65535 + 0.5)
}
