package meter

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/vector"
)

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5522847498

// RasterCanvas draws anti-aliased shapes into an RGBA image.
type RasterCanvas struct {
	img *image.RGBA
	z   *vector.Rasterizer
}

// NewRasterCanvas creates a transparent canvas.
func NewRasterCanvas(width, height int) *RasterCanvas {
	return &RasterCanvas{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		z:   vector.NewRasterizer(width, height),
	}
}

// Clear resets every pixel to transparent.
func (c *RasterCanvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// FillCircle paints a filled disc.
func (c *RasterCanvas) FillCircle(center Point, r float64, col color.Color) {
	b := c.img.Bounds()
	c.z.Reset(b.Dx(), b.Dy())
	circle(c.z, center, r, false)
	c.z.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// StrokeCircle paints a ring of the given width centred on the circle.
func (c *RasterCanvas) StrokeCircle(center Point, r, width float64, col color.Color) {
	half := width / 2
	b := c.img.Bounds()
	c.z.Reset(b.Dx(), b.Dy())
	circle(c.z, center, r+half, false)
	// Opposite winding cuts the inner disc out of the outer one.
	circle(c.z, center, max(r-half, 0), true)
	c.z.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// circle adds a closed circular subpath, clockwise in image coordinates
// unless reverse is set.
func circle(z *vector.Rasterizer, center Point, r float64, reverse bool) {
	cx, cy := float32(center.X), float32(center.Y)
	ry := float32(r)
	ky := float32(kappa * r)
	// Mirroring x flips the direction of travel.
	rx, kx := ry, ky
	if reverse {
		rx, kx = -rx, -kx
	}
	z.MoveTo(cx, cy-ry)
	z.CubeTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
	z.CubeTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
	z.CubeTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
	z.CubeTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
	z.ClosePath()
}

// Image returns the backing image. Callers must not retain it across frames.
func (c *RasterCanvas) Image() *image.RGBA {
	return c.img
}

// PNG encodes the current contents.
func (c *RasterCanvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
