package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// PreparedImage is the engine input plus the factor mapping its pixels back to the source.
type PreparedImage struct {
	PNG           []byte
	Format        string
	SrcW, SrcH    int
	Width, Height int
	Scale         float64 // source px per prepared px; 1 when not resized
}

// PrepareImage decodes data to RGB and, if either side exceeds maxDim,
// scales it down preserving aspect ratio with a Catmull-Rom filter.
func PrepareImage(data []byte, maxDim int) (PreparedImage, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return PreparedImage{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return PreparedImage{}, fmt.Errorf("decode image: empty %dx%d image", w, h)
	}

	nw, nh, scale := fitWithin(w, h, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	if scale == 1 {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return PreparedImage{}, fmt.Errorf("encode png: %w", err)
	}
	return PreparedImage{
		PNG:    buf.Bytes(),
		Format: format,
		SrcW:   w, SrcH: h,
		Width: nw, Height: nh,
		Scale: scale,
	}, nil
}

// fitWithin returns the target size and the source/target ratio. Images whose
// sides are both <= maxDim are left alone.
func fitWithin(w, h, maxDim int) (int, int, float64) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h, 1
	}
	longest := max(w, h)
	ratio := float64(maxDim) / float64(longest)
	nw := max(1, int(float64(w)*ratio+0.5))
	nh := max(1, int(float64(h)*ratio+0.5))
	return nw, nh, float64(longest) / float64(maxDim)
}

// toSource maps a box from prepared-image pixels to source pixels.
func (p PreparedImage) toSource(l Line) Line {
	if p.Scale == 1 {
		return l
	}
	for i := range l.Box {
		l.Box[i][0] *= p.Scale
		l.Box[i][1] *= p.Scale
	}
	return l
}
