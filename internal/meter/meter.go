// Package meter draws the six-segment level meter of the live stream.
package meter

import (
	"image/color"
	"math"
)

// Segments is the number of circles in the meter.
const Segments = 6

// AccentIndex is the segment filled with the accent colour when lit.
const AccentIndex = Segments - 1

// Padding is the gap kept around every circle, in pixels.
const Padding = 2.0

// LitSegments maps a normalized level to the number of lit segments.
func LitSegments(level float64) int {
	if math.IsNaN(level) {
		return 0
	}
	return int(math.Max(0, math.Min(Segments, math.Floor(level*Segments))))
}

// Point is a position on the canvas.
type Point struct {
	X, Y float64
}

// Layout is the geometry of the meter on a fixed-size canvas.
type Layout struct {
	Width   int
	Height  int
	Centers [Segments]Point
	Radius  float64
}

// NewLayout spaces the segments evenly, with half a spacing of margin at
// both ends.
func NewLayout(width, height int) Layout {
	l := Layout{Width: width, Height: height}
	spacing := float64(width) / Segments
	for i := range l.Centers {
		l.Centers[i] = Point{X: spacing * (float64(i) + 0.5), Y: float64(height) / 2}
	}
	l.Radius = math.Max(1, math.Min(spacing/2-Padding, float64(height)/2-Padding))
	return l
}

// Palette holds the meter colours.
type Palette struct {
	Fill   color.RGBA
	Stroke color.RGBA
	Accent color.RGBA
}

// DefaultPalette is a neutral grey meter with an orange top segment.
var DefaultPalette = Palette{
	Fill:   color.RGBA{R: 0xD9, G: 0xD9, B: 0xD9, A: 0xFF},
	Stroke: color.RGBA{R: 0x8C, G: 0x8C, B: 0x8C, A: 0xFF},
	Accent: color.RGBA{R: 0xFF, G: 0x5A, B: 0x1F, A: 0xFF},
}

// Canvas is a drawing surface.
type Canvas interface {
	Clear()
	FillCircle(center Point, r float64, c color.Color)
	StrokeCircle(center Point, r, width float64, c color.Color)
}

// StrokeWidth is the outline width in pixels.
const StrokeWidth = 1.5

// Render draws one frame: every segment is outlined, the first lit are
// filled. The highest segment always uses the accent colour.
func Render(c Canvas, l Layout, lit int, p Palette) {
	c.Clear()
	for i, center := range l.Centers {
		if i < lit {
			fill := p.Fill
			if i == AccentIndex {
				fill = p.Accent
			}
			c.FillCircle(center, l.Radius, fill)
		}
		c.StrokeCircle(center, l.Radius, StrokeWidth, p.Stroke)
	}
}
