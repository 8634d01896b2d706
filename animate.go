package passrec

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
)

// Animate renders frames chains and writes them to path as an animated GIF.
// fn builds frame i from c; delay is the time each frame is shown.
func (c Chain) Animate(path string, frames int, delay time.Duration, fn func(frame int, c Chain) Chain) error {
	if frames <= 0 {
		return configErrorf("animation needs at least one frame, got %d", frames)
	}
	anim := &gif.GIF{LoopCount: 0}
	centis := int(delay / (10 * time.Millisecond))
	for i := 0; i < frames; i++ {
		img, err := renderFrame(fn(i, c))
		if err != nil {
			return fmt.Errorf("passrec: frame %d: %w", i, err)
		}
		b := img.Bounds()
		p := image.NewPaletted(b, palette.Plan9)
		draw.FloydSteinberg.Draw(p, b, img, b.Min)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, centis)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("passrec: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("passrec: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("passrec: encode gif: %w", err)
	}
	return f.Close()
}

func renderFrame(c Chain) (image.Image, error) {
	r := c.Execute()
	defer r.Close()
	return r.Image(0)
}
