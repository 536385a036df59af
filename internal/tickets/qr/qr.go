// Package qr renders stored ticket payloads as PNG QR codes.
package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

var ErrEmptyPayload = errors.New("qr: empty payload")

// Generator encodes payloads verbatim; the scanner reads back exactly the stored string.
type Generator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewGenerator() *Generator {
	return &Generator{Size: DefaultSize, Level: qrcode.Medium}
}

func (g *Generator) PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	return qrcode.Encode(payload, g.Level, g.Size)
}
