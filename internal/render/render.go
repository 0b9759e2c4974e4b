// Package render lays out a telemetry snapshot as a 160×80 RGB565 frame.
//
// The panel is split into six horizontal bands of equal height: identity,
// divider, CPU (text and bar), RAM, disk and temperature. Text uses the
// ProggyTiny bitmap font and each band is drawn through a clip so no glyph can
// reach a neighbouring band.
package render

import (
	"image"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/flavioheleno/statpanel/image565"
	"github.com/flavioheleno/statpanel/internal/telemetry"
	"github.com/flavioheleno/statpanel/st7735"
)

const (
	bandCount  = 6
	bandHeight = 13
	// baseline is the glyph baseline relative to the top of a band.
	baseline = 10
	// margin is the horizontal padding on either side of the text.
	margin = 1
)

// Band indexes, top to bottom.
const (
	BandIdentity = iota
	BandDivider
	BandCPU
	BandRAM
	BandDisk
	BandTemp
)

var (
	colorText     = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	colorIdentity = color.RGBA{R: 0xFF, G: 0xE0, B: 0x00, A: 0xFF}
	colorDivider  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}

	barOutline = image565.White
	barFill    = image565.Green
)

// Options configures a Renderer.
type Options struct {
	// Bounds is the frame rectangle. Defaults to the panel's active area.
	Bounds image.Rectangle
	// Unit is the suffix of the temperature row.
	Unit telemetry.Unit
	// Font defaults to ProggyTiny.
	Font tinyfont.Fonter
}

// Renderer turns snapshots into frames. It holds no per-frame state and is
// safe to reuse.
type Renderer struct {
	bounds image.Rectangle
	unit   telemetry.Unit
	font   tinyfont.Fonter
	cols   int
	bar    image.Rectangle
}

// New returns a Renderer for opts.
func New(opts Options) *Renderer {
	r := &Renderer{bounds: opts.Bounds, unit: opts.Unit, font: opts.Font}
	if r.bounds.Empty() {
		r.bounds = image.Rect(0, 0, st7735.DefaultWidth, st7735.DefaultHeight)
	}
	if r.unit == 0 {
		r.unit = telemetry.Celsius
	}
	if r.font == nil {
		r.font = &proggy.TinySZ8pt7b
	}

	_, adv := tinyfont.LineWidth(r.font, "0")
	if adv == 0 {
		adv = 6
	}
	r.cols = max((r.bounds.Dx()-2*margin)/int(adv), 1)

	// The bar starts after the widest CPU label and keeps a one pixel gap
	// from the band edges.
	_, label := tinyfont.LineWidth(r.font, "CPU 100% ")
	top := r.bounds.Min.Y + BandCPU*bandHeight
	if x0, x1 := r.bounds.Min.X+margin+int(label), r.bounds.Max.X-margin; x0 < x1 {
		r.bar = image.Rect(x0, top+2, x1, top+bandHeight-2)
	}
	return r
}

// Cols is the number of glyphs that fit on a row.
func (r *Renderer) Cols() int {
	return r.cols
}

// Bounds returns the frame rectangle produced by Render.
func (r *Renderer) Bounds() image.Rectangle {
	return r.bounds
}

// Render draws s into a new frame. It never fails: every input, including a
// zero Snapshot, yields a frame of exactly Bounds().
func (r *Renderer) Render(s telemetry.Snapshot) *image565.Frame {
	f := image565.NewFrame(r.bounds)
	l := r.Lines(s)

	r.text(f, BandIdentity, l.Identity, colorIdentity)
	r.text(f, BandDivider, l.Divider, colorDivider)
	r.text(f, BandCPU, l.CPU, colorText)
	r.cpuBar(f, s.CPU)
	r.text(f, BandRAM, l.RAM, colorText)
	r.text(f, BandDisk, l.Disk, colorText)
	r.text(f, BandTemp, l.Temp, colorText)
	return f
}

func (r *Renderer) band(i int) image.Rectangle {
	top := r.bounds.Min.Y + i*bandHeight
	return image.Rect(r.bounds.Min.X, top, r.bounds.Max.X, top+bandHeight).Intersect(r.bounds)
}

func (r *Renderer) text(f *image565.Frame, i int, s string, c color.RGBA) {
	b := r.band(i)
	if b.Empty() || s == "" {
		return
	}
	d := &clip{f: f, r: b}
	tinyfont.WriteLine(d, r.font, int16(b.Min.X+margin), int16(b.Min.Y+baseline), s, c)
}

// cpuBar draws the load bar: an outline whose interior is filled
// proportionally to bucket.
func (r *Renderer) cpuBar(f *image565.Frame, bucket uint8) {
	inner := r.bar.Inset(1)
	if inner.Dx() < 1 || inner.Dy() < 1 {
		return
	}
	o := r.bar
	f.FillRect(image.Rect(o.Min.X, o.Min.Y, o.Max.X, o.Min.Y+1), barOutline)
	f.FillRect(image.Rect(o.Min.X, o.Max.Y-1, o.Max.X, o.Max.Y), barOutline)
	f.FillRect(image.Rect(o.Min.X, o.Min.Y, o.Min.X+1, o.Max.Y), barOutline)
	f.FillRect(image.Rect(o.Max.X-1, o.Min.Y, o.Max.X, o.Max.Y), barOutline)

	filled := inner.Dx() * int(bucket) / 255
	f.FillRect(image.Rect(inner.Min.X, inner.Min.Y, inner.Min.X+filled, inner.Max.Y), barFill)
}

// clip is a tinyfont display writing into one band of a frame. Pixels
// outside the band are dropped.
type clip struct {
	f *image565.Frame
	r image.Rectangle
}

func (c *clip) Size() (x, y int16) {
	return int16(c.f.Rect.Dx()), int16(c.f.Rect.Dy())
}

func (c *clip) SetPixel(x, y int16, col color.RGBA) {
	if !image.Pt(int(x), int(y)).In(c.r) {
		return
	}
	c.f.SetRGB565(int(x), int(y), image565.FromRGB(col.R, col.G, col.B))
}

func (c *clip) Display() error {
	return nil
}
