package detector

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is an encoded input image together with its pixel dimensions.
type Image struct {
	Path   string
	Format string
	Width  int
	Height int
	Data   []byte
}

// LoadImage reads path and decodes only its header for the dimensions, not the pixels.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("image %s has invalid size %dx%d", path, cfg.Width, cfg.Height)
	}
	return Image{Path: path, Format: format, Width: cfg.Width, Height: cfg.Height, Data: data}, nil
}
