// Package qr renders verification URLs as QR code images.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/famproject/sigchain/internal/sigchain"
)

// defaultSize is the width and height in pixels of generated QR images.
// 256px scans reliably from printed seals down to about 2cm square.
const defaultSize = 256

// Renderer produces PNG QR codes with medium error correction, leaving
// headroom for print damage on physical seals.
type Renderer struct {
	size int
}

var _ sigchain.QRRenderer = (*Renderer)(nil)

// NewRenderer creates a Renderer at the default image size.
func NewRenderer() *Renderer {
	return &Renderer{size: defaultSize}
}

// Render encodes url as a PNG QR code.
func (r *Renderer) Render(url string) ([]byte, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	return png, nil
}
