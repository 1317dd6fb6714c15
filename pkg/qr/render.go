// Package qr renders protocol strings as QR codes. Capture and decoding
// are the platform camera's job; this side only produces images.
package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultPNGSize is the square pixel size used when callers pass 0.
const DefaultPNGSize = 512

// PNG renders the given content as a PNG image. Fountain frames run close
// to the QR capacity limit, so the lowest recovery level keeps the module
// grid coarse enough to scan between animation ticks.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	png, err := qrcode.Encode(content, qrcode.Low, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}

// Terminal renders the given content as a half-block string suitable for
// printing inside a TUI.
func Terminal(content string) (string, error) {
	code, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	return code.ToSmallString(false), nil
}
