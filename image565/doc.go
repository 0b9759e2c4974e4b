// Package image565 provides a 16-bit RGB565 image format for MIPI-DCS style TFT controllers.
//
// Controllers such as the ST7735S accept pixels as 16-bit RGB565 words when the interface
// pixel format (COLMOD) is set to 0x05. Each pixel is stored as two bytes, most significant
// byte first, which is exactly the order the controller expects on the wire.
//
// Memory layout example for a 2-pixel row:
//
//	Pixels: 0          1
//	Colors: red        blue
//	Words:  0xF800     0x001F
//	Bytes:  0xF8 0x00  0x00 0x1F
//
// This package provides:
//
// - RGB565: A color type holding a packed 5-6-5 word
// - Model: A color model for converting standard Go colors to RGB565
// - Frame: An image.Image implementation whose Pix can be streamed to the panel as-is
//
// Example usage:
//
//	// Create a 160x80 frame
//	f := image565.NewFrame(image.Rect(0, 0, 160, 80))
//
//	// Paint the background and a pixel
//	f.Fill(image565.Black)
//	f.SetRGB565(10, 20, image565.FromRGB(255, 255, 255))
//
//	// Use with standard Go image operations
//	draw.Draw(f, f.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
package image565
