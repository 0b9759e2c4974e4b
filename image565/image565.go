package image565

import (
	"image"
	"image/color"
)

// RGB565 is a packed 16-bit color: 5 bits red, 6 bits green, 5 bits blue.
type RGB565 uint16

// Common colors.
const (
	Black RGB565 = 0x0000
	White RGB565 = 0xFFFF
	Red   RGB565 = 0xF800
	Green RGB565 = 0x07E0
	Blue  RGB565 = 0x001F
)

// FromRGB packs 8-bit channels into an RGB565 word.
func FromRGB(r, g, b uint8) RGB565 {
	return RGB565(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

// RGBA converts the RGB565 color to standard RGBA.
// Each channel is expanded by bit replication so that full intensity maps to 0xFFFF.
func (c RGB565) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1F
	g6 := uint32(c>>5) & 0x3F
	b5 := uint32(c) & 0x1F

	// Replicate high bits into the low bits, then widen 8-bit to 16-bit
	r8 := r5<<3 | r5>>2
	g8 := g6<<2 | g6>>4
	b8 := b5<<3 | b5>>2
	return r8 * 0x101, g8 * 0x101, b8 * 0x101, 0xFFFF
}

// toRGB565 converts any color.Color to RGB565.
func toRGB565(c color.Color) color.Color {
	if v, ok := c.(RGB565); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return FromRGB(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Model converts colors to RGB565.
var Model = color.ModelFunc(toRGB565)

// Frame is an RGB565 image where each pixel occupies two bytes, high byte first.
type Frame struct {
	Pix    []byte          // Pixel data (2 bytes per pixel)
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
}

// NewFrame creates a new Frame with the specified bounds, all pixels black.
func NewFrame(r image.Rectangle) *Frame {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Frame{Rect: r}
	}
	stride := w * 2
	return &Frame{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   r,
	}
}

// ColorModel returns the color model of the image.
func (f *Frame) ColorModel() color.Model {
	return Model
}

// Bounds returns the image bounds.
func (f *Frame) Bounds() image.Rectangle {
	return f.Rect
}

// At returns the color of the pixel at (x, y).
// It implements the image.Image interface.
func (f *Frame) At(x, y int) color.Color {
	return f.RGB565At(x, y)
}

// RGB565At returns the RGB565 color of the pixel at (x, y).
func (f *Frame) RGB565At(x, y int) RGB565 {
	if !(image.Point{X: x, Y: y}.In(f.Rect)) {
		return Black
	}
	i := f.pixOffset(x, y)
	return RGB565(uint16(f.Pix[i])<<8 | uint16(f.Pix[i+1]))
}

// Set sets the color of the pixel at (x, y).
func (f *Frame) Set(x, y int, c color.Color) {
	f.SetRGB565(x, y, Model.Convert(c).(RGB565))
}

// SetRGB565 sets the RGB565 color of the pixel at (x, y).
// Writes outside the bounds are ignored.
func (f *Frame) SetRGB565(x, y int, c RGB565) {
	if !(image.Point{X: x, Y: y}.In(f.Rect)) {
		return
	}
	i := f.pixOffset(x, y)
	f.Pix[i] = byte(c >> 8)
	f.Pix[i+1] = byte(c)
}

// Fill paints every pixel with c.
func (f *Frame) Fill(c RGB565) {
	f.FillRect(f.Rect, c)
}

// FillRect paints the intersection of r and the frame bounds with c.
func (f *Frame) FillRect(r image.Rectangle, c RGB565) {
	r = r.Intersect(f.Rect)
	hi, lo := byte(c>>8), byte(c)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := f.pixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			f.Pix[i] = hi
			f.Pix[i+1] = lo
			i += 2
		}
	}
}

// pixOffset returns the index of the high byte of the pixel at (x, y).
func (f *Frame) pixOffset(x, y int) int {
	return (y-f.Rect.Min.Y)*f.Stride + (x-f.Rect.Min.X)*2
}
