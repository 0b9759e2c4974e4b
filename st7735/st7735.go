// Package st7735 controls an ST7735S class TFT display via I²C.
//
// The ST7735S is a 262K-color TFT controller with a 132x162 frame memory. Common modules expose
// a 160x80 window of that memory. The driver streams RGB565 frames from package image565.
//
// See doc.go for wiring and usage.
package st7735

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/flavioheleno/statpanel/image565"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Panel defaults for the common 0.96" 160x80 IPS module.
const (
	DefaultWidth   = 160
	DefaultHeight  = 80
	DefaultAddr    = 0x3C
	DefaultChunk   = 1024
	defaultXOffset = 1
	defaultYOffset = 26

	// maxDim is the long side of the controller's frame memory.
	maxDim   = 162
	minChunk = 16
)

// Control bytes prefixing every I²C write.
const (
	ctrlCommand byte = 0x00
	ctrlData    byte = 0x40
)

// Controller opcodes (MIPI-DCS subset).
const (
	cmdSWRESET byte = 0x01
	cmdSLPIN   byte = 0x10
	cmdSLPOUT  byte = 0x11
	cmdNORON   byte = 0x13
	cmdINVOFF  byte = 0x20
	cmdINVON   byte = 0x21
	cmdDISPOFF byte = 0x28
	cmdDISPON  byte = 0x29
	cmdCASET   byte = 0x2A
	cmdRASET   byte = 0x2B
	cmdRAMWR   byte = 0x2C
	cmdMADCTL  byte = 0x36
	cmdCOLMOD  byte = 0x3A
)

// MADCTL bits.
const (
	madctlMY  byte = 0x80
	madctlMX  byte = 0x40
	madctlMV  byte = 0x20
	madctlBGR byte = 0x08
)

// colmod16 selects 16 bits per pixel (RGB565).
const colmod16 byte = 0x05

// readyPoll is the polling step while waiting on the optional Ready line.
const readyPoll = time.Millisecond

var (
	// ErrBus is returned when a bus transaction is not acknowledged or is incomplete.
	ErrBus = errors.New("st7735: bus transaction failed")
	// ErrInvalidGeometry is returned for windows or frames that do not fit the panel.
	ErrInvalidGeometry = errors.New("st7735: invalid geometry")
	// ErrTimeout is returned when the Ready line does not assert after a settle delay.
	ErrTimeout = errors.New("st7735: timed out waiting for ready")
	// ErrHalted is returned by drawing operations after Halt.
	ErrHalted = errors.New("st7735: halted")
)

// Rotation selects the memory access order programmed through MADCTL.
type Rotation uint8

// Supported orientations.
const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Opts is the configuration for the ST7735 display.
type Opts struct {
	// Display dimensions in pixels
	W int // Width (default: 160)
	H int // Height (default: 80)

	// Offset of the visible window inside the controller's frame memory
	XOffset int
	YOffset int

	// Orientation and color order
	Rotation Rotation
	BGR      bool // Panel wired blue-green-red
	Invert   bool // Send INVON during init (most IPS panels need it)

	// Bus
	Speed     physic.Frequency // Bus speed, left untouched when zero
	ChunkSize int              // Pixel bytes per bus transaction (default: 1024)

	// Optional hardware lines
	RST          gpio.PinOut   // Reset pin (optional, nil if not used)
	Ready        gpio.PinIn    // Ready/TE line polled after settle delays (optional)
	ReadyTimeout time.Duration // Ready wait bound (default: 100ms)

	// Sleep is used for settle delays (default: time.Sleep)
	Sleep func(time.Duration)
}

// DefaultOpts returns the options for the common 160x80 landscape module.
func DefaultOpts() Opts {
	return Opts{
		W:        DefaultWidth,
		H:        DefaultHeight,
		XOffset:  defaultXOffset,
		YOffset:  defaultYOffset,
		Rotation: Rotation90,
		BGR:      true,
		Invert:   true,
	}
}

// Dev is the device handle for the ST7735 display.
//
// Dev is not safe for concurrent use; a single goroutine owns the bus.
type Dev struct {
	// Communication
	c     conn.Conn
	rst   gpio.PinOut
	ready gpio.PinIn
	sleep func(time.Duration)

	// Display geometry
	rect             image.Rectangle
	xOffset, yOffset int
	madctl           byte
	invert           bool

	// Bus framing
	chunk int
	buf   []byte // control byte + one chunk

	readyTimeout time.Duration

	// Scratch frame for Draw
	next *image565.Frame

	// State
	window image.Rectangle
	halted bool
}

// step is one entry of the power-on command table.
type step struct {
	cmd    byte
	params []byte
	delay  time.Duration
}

// NewI2C creates a new ST7735 device on an I²C bus and runs the power-on sequence.
//
// opts can be nil to use DefaultOpts.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		o := DefaultOpts()
		opts = &o
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.Speed != 0 {
		if err := b.SetSpeed(opts.Speed); err != nil {
			return nil, fmt.Errorf("st7735: failed to set bus speed: %w", err)
		}
	}

	d := newDev(&i2c.Dev{Bus: b, Addr: addr}, opts)

	if d.ready != nil {
		if err := d.ready.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("st7735: failed to configure ready pin: %w", err)
		}
	}

	if err := d.ResetAndInit(); err != nil {
		return nil, err
	}
	return d, nil
}

// newDev builds the handle from validated options without touching the bus.
func newDev(c conn.Conn, opts *Opts) *Dev {
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunk
	}
	timeout := opts.ReadyTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Dev{
		c:            c,
		rst:          opts.RST,
		ready:        opts.Ready,
		sleep:        sleep,
		rect:         image.Rect(0, 0, opts.W, opts.H),
		xOffset:      opts.XOffset,
		yOffset:      opts.YOffset,
		madctl:       opts.madctl(),
		invert:       opts.Invert,
		chunk:        chunk,
		buf:          make([]byte, chunk+1),
		readyTimeout: timeout,
	}
}

func (o *Opts) validate() error {
	if o.W <= 0 || o.W > maxDim {
		return fmt.Errorf("%w: width must be between 1 and %d", ErrInvalidGeometry, maxDim)
	}
	if o.H <= 0 || o.H > maxDim {
		return fmt.Errorf("%w: height must be between 1 and %d", ErrInvalidGeometry, maxDim)
	}
	if o.XOffset < 0 || o.W+o.XOffset > maxDim {
		return fmt.Errorf("%w: column offset %d does not fit frame memory", ErrInvalidGeometry, o.XOffset)
	}
	if o.YOffset < 0 || o.H+o.YOffset > maxDim {
		return fmt.Errorf("%w: row offset %d does not fit frame memory", ErrInvalidGeometry, o.YOffset)
	}
	if o.Rotation > Rotation270 {
		return fmt.Errorf("st7735: unknown rotation %d", o.Rotation)
	}
	if o.ChunkSize != 0 && o.ChunkSize < minChunk {
		return fmt.Errorf("st7735: chunk size must be at least %d bytes", minChunk)
	}
	return nil
}

// madctl computes the memory access control byte.
func (o *Opts) madctl() byte {
	var m byte
	switch o.Rotation {
	case Rotation90:
		m = madctlMX | madctlMV
	case Rotation180:
		m = madctlMX | madctlMY
	case Rotation270:
		m = madctlMY | madctlMV
	}
	if o.BGR {
		m |= madctlBGR
	}
	return m
}

// initSequence returns the power-on command table with its settle delays.
func (d *Dev) initSequence() []step {
	inv := cmdINVOFF
	if d.invert {
		inv = cmdINVON
	}
	return []step{
		{cmd: cmdSWRESET, delay: 150 * time.Millisecond},
		{cmd: cmdSLPOUT, delay: 500 * time.Millisecond},
		{cmd: cmdCOLMOD, params: []byte{colmod16}, delay: 10 * time.Millisecond},
		{cmd: cmdMADCTL, params: []byte{d.madctl}},
		{cmd: inv},
		{cmd: cmdNORON, delay: 10 * time.Millisecond},
		{cmd: cmdDISPON, delay: 100 * time.Millisecond},
	}
}

// ResetAndInit brings the controller to its known powered-on state.
//
// It is safe to call at any time, and is the recovery path after ErrBus.
func (d *Dev) ResetAndInit() error {
	// Hardware reset sequence (if RST pin is provided)
	if d.rst != nil {
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("st7735: failed to pull RST low: %w", err)
		}
		d.sleep(10 * time.Millisecond)

		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("st7735: failed to pull RST high: %w", err)
		}
		d.sleep(120 * time.Millisecond)
	}

	for _, s := range d.initSequence() {
		if err := d.sendCommand(s.cmd, s.params...); err != nil {
			return err
		}
		if s.delay > 0 {
			d.sleep(s.delay)
			if err := d.waitReady(); err != nil {
				return err
			}
		}
	}

	d.window = image.Rectangle{}
	d.halted = false
	return nil
}

// waitReady polls the Ready line until it reads high. Without a Ready line the
// fixed settle delay is all the controller needs.
func (d *Dev) waitReady() error {
	if d.ready == nil {
		return nil
	}
	for waited := time.Duration(0); ; waited += readyPoll {
		if d.ready.Read() == gpio.High {
			return nil
		}
		if waited >= d.readyTimeout {
			return fmt.Errorf("%w after %s", ErrTimeout, d.readyTimeout)
		}
		d.sleep(readyPoll)
	}
}

// sendCommand sends an opcode followed by its parameter bytes, if any.
func (d *Dev) sendCommand(cmd byte, params ...byte) error {
	if err := d.tx(ctrlCommand, []byte{cmd}); err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	return d.tx(ctrlData, params)
}

// sendData streams data bytes in chunk-sized transactions.
func (d *Dev) sendData(data []byte) error {
	for len(data) > 0 {
		n := min(len(data), d.chunk)
		if err := d.tx(ctrlData, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// tx performs a single bus write prefixed with the control byte.
func (d *Dev) tx(ctrl byte, p []byte) error {
	w := d.buf[:len(p)+1]
	w[0] = ctrl
	copy(w[1:], p)
	if err := d.c.Tx(w, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrBus, err)
	}
	return nil
}

// SetWindow sets the addressing window for the next pixel burst. Bounds are
// inclusive and relative to the visible panel.
func (d *Dev) SetWindow(colStart, colEnd, rowStart, rowEnd int) error {
	if d.halted {
		return ErrHalted
	}
	if colStart < 0 || colStart > colEnd || colEnd >= d.rect.Dx() {
		return fmt.Errorf("%w: columns %d..%d outside 0..%d", ErrInvalidGeometry, colStart, colEnd, d.rect.Dx()-1)
	}
	if rowStart < 0 || rowStart > rowEnd || rowEnd >= d.rect.Dy() {
		return fmt.Errorf("%w: rows %d..%d outside 0..%d", ErrInvalidGeometry, rowStart, rowEnd, d.rect.Dy()-1)
	}

	xs, xe := colStart+d.xOffset, colEnd+d.xOffset
	ys, ye := rowStart+d.yOffset, rowEnd+d.yOffset
	if err := d.sendCommand(cmdCASET, byte(xs>>8), byte(xs), byte(xe>>8), byte(xe)); err != nil {
		return err
	}
	if err := d.sendCommand(cmdRASET, byte(ys>>8), byte(ys), byte(ye>>8), byte(ye)); err != nil {
		return err
	}

	d.window = image.Rect(colStart, rowStart, colEnd+1, rowEnd+1)
	return nil
}

// WriteFrame writes a full frame to the display.
//
// On ErrBus the panel holds a partially updated image; the caller must send a
// whole frame again rather than resume.
func (d *Dev) WriteFrame(f *image565.Frame) error {
	if d.halted {
		return ErrHalted
	}
	if f == nil || f.Rect != d.rect || len(f.Pix) != d.frameSize() {
		return fmt.Errorf("%w: frame does not match panel %dx%d", ErrInvalidGeometry, d.rect.Dx(), d.rect.Dy())
	}
	return d.writeFullFrame(f.Pix)
}

// writeFullFrame sets the full-panel window and streams pixels row-major.
func (d *Dev) writeFullFrame(pixels []byte) error {
	if err := d.SetWindow(0, d.rect.Dx()-1, 0, d.rect.Dy()-1); err != nil {
		return err
	}
	if err := d.sendCommand(cmdRAMWR); err != nil {
		return err
	}
	return d.sendData(pixels)
}

func (d *Dev) frameSize() int {
	return d.rect.Dx() * d.rect.Dy() * 2
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return image565.Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Window returns the last addressing window set on the controller.
func (d *Dev) Window() image.Rectangle {
	return d.window
}

// Write writes raw RGB565 big-endian pixel data to the display.
// The data must be exactly W * H * 2 bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	if d.halted {
		return 0, ErrHalted
	}
	if len(pixels) != d.frameSize() {
		return 0, fmt.Errorf("%w: buffer is %d bytes, want %d", ErrInvalidGeometry, len(pixels), d.frameSize())
	}
	if err := d.writeFullFrame(pixels); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// Draw draws an image onto the display. The whole panel is always retransmitted
// so that every call leaves a complete frame behind it.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted {
		return ErrHalted
	}

	// Clip to display bounds
	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}

	// Fast path: source is already a full-size frame
	if f, ok := src.(*image565.Frame); ok {
		if dst == d.rect && sp == (image.Point{}) && f.Rect == d.rect {
			return d.WriteFrame(f)
		}
	}

	if d.next == nil {
		d.next = image565.NewFrame(d.rect)
	}
	draw.Draw(d.next, dst, src, sp, draw.Src)
	return d.WriteFrame(d.next)
}

// Invert inverts the display colors.
func (d *Dev) Invert(invert bool) error {
	if d.halted {
		return ErrHalted
	}
	cmd := cmdINVOFF
	if invert {
		cmd = cmdINVON
	}
	if err := d.sendCommand(cmd); err != nil {
		return err
	}
	d.invert = invert
	return nil
}

// Halt turns the display off and puts the controller to sleep.
// After calling Halt, drawing fails with ErrHalted until ResetAndInit.
func (d *Dev) Halt() error {
	d.halted = true
	if err := d.sendCommand(cmdDISPOFF); err != nil {
		return err
	}
	return d.sendCommand(cmdSLPIN)
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("st7735.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}

var _ display.Drawer = (*Dev)(nil)
