package frames

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
)

// RGBA is a decoded frame in row-major 8-bit RGBA, the layout the browser's
// ImageData expects.
type RGBA struct {
	Width  int
	Height int
	Pix    []byte
}

// LoadRGBA decodes an image file into tightly packed RGBA.
func LoadRGBA(path string) (*RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	return &RGBA{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}, nil
}
