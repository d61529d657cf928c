// Package annotate draws detection records onto images.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/srediag/detection-shm/pkg/detection"
)

const (
	thickness   = 2
	labelOffset = 10
	jpegQuality = 90
)

// Green is the box and label colour.
var Green = color.RGBA{G: 0xff, A: 0xff}

// Label returns the caption drawn above a record's box.
func Label(r detection.Record) string {
	return fmt.Sprintf("ID:%d %.2f", r.ClassID, r.Confidence)
}

// Draw outlines every record on dst and captions it. Boxes span
// (X, Y) to (X+W, Y+H) inclusive and are clipped to dst.
func Draw(dst draw.Image, records []detection.Record) {
	src := image.NewUniform(Green)
	face := basicfont.Face7x13
	for _, r := range records {
		x0, y0 := int(r.X), int(r.Y)
		x1, y1 := x0+int(r.W), y0+int(r.H)
		fill(dst, image.Rect(x0, y0, x1+1, y0+thickness), src)
		fill(dst, image.Rect(x0, y1-thickness+1, x1+1, y1+1), src)
		fill(dst, image.Rect(x0, y0, x0+thickness, y1+1), src)
		fill(dst, image.Rect(x1-thickness+1, y0, x1+1, y1+1), src)

		baseline := y0 - labelOffset
		if top := dst.Bounds().Min.Y + face.Ascent; baseline < top {
			baseline = top
		}
		d := font.Drawer{Dst: dst, Src: src, Face: face, Dot: fixed.P(x0, baseline)}
		d.DrawString(Label(r))
	}
}

func fill(dst draw.Image, r image.Rectangle, src image.Image) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, src, image.Point{}, draw.Src)
}

// File decodes the image at in, draws records on it and encodes the result
// to out. The output format follows out's extension: .png, .jpg/.jpeg,
// .bmp or .tif/.tiff.
func File(in, out string, records []detection.Record) error {
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	src, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("decode image %s: %w", in, err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
	Draw(canvas, records)

	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := encode(dst, out, canvas); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func encode(f *os.File, path string, img image.Image) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, nil)
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
