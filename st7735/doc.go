// Package st7735 controls an ST7735S class TFT display via I²C.
//
// The ST7735S is a MIPI-DCS style TFT controller with a 132×162 frame memory.
// This driver implements the display.Drawer interface from periph.io.
//
// # Display Characteristics
//
// - 16-bit RGB565 color (COLMOD 0x05)
// - Visible window placed inside frame memory with configurable offsets
// - Four orientations through MADCTL
// - Display inversion (most IPS modules need it enabled)
//
// # Bus Framing
//
// Every I²C write starts with a control byte: 0x00 for an opcode, 0x40 for
// parameter or pixel data. Pixel data is split into ChunkSize transactions so
// that it fits the adapter's transfer limit.
//
// # Basic Usage
//
//	package main
//
//	import (
//		"periph.io/x/conn/v3/i2c/i2creg"
//		"periph.io/x/host/v3"
//
//		"github.com/flavioheleno/statpanel/image565"
//		"github.com/flavioheleno/statpanel/st7735"
//	)
//
//	func main() {
//		// Initialize periph.io
//		host.Init()
//
//		// Open I²C bus
//		bus, _ := i2creg.Open("")
//		defer bus.Close()
//
//		// Create device (160×80 landscape defaults)
//		dev, _ := st7735.NewI2C(bus, st7735.DefaultAddr, nil)
//		defer dev.Halt()
//
//		// Fill the panel with red
//		f := image565.NewFrame(dev.Bounds())
//		f.Fill(image565.Red)
//		dev.WriteFrame(f)
//	}
//
// # Power-on Sequence
//
// ResetAndInit sends, in order: SWRESET, SLPOUT, COLMOD, MADCTL, INVON or
// INVOFF, NORON and DISPON, sleeping the controller's settle delay after the
// steps that need one. When a Ready line is provided it must read high after
// each delay, or ErrTimeout is returned.
//
// ResetAndInit is idempotent and is the recovery path after ErrBus.
//
// # Frame Writes
//
// WriteFrame always sets the full-panel window with CASET and RASET, issues
// RAMWR and then streams the frame row-major. Identical frames produce
// identical bus traffic. A failed chunk leaves the panel partially updated;
// the next full frame repairs it.
//
// # Datasheet
//
// https://www.displayfuture.com/Display/datasheet/controller/ST7735.pdf
package st7735
