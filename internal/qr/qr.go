// Package qr renders scan URLs as PNG QR codes.
package qr

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// Encoder turns tokens into scannable images pointing at the scan page.
type Encoder struct {
	BaseURL string
	Size    int
}

// New returns an encoder producing size x size pixel images.
func New(baseURL string, size int) *Encoder {
	if size <= 0 {
		size = 256
	}
	return &Encoder{BaseURL: strings.TrimRight(baseURL, "/"), Size: size}
}

// ScanURL is the link a member's phone opens after reading the code.
func (e *Encoder) ScanURL(token string) string {
	return e.BaseURL + "/?token=" + url.QueryEscape(token)
}

// PNG renders the scan URL for token.
func (e *Encoder) PNG(token string) ([]byte, error) {
	png, err := qrcode.Encode(e.ScanURL(token), qrcode.Medium, e.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// DataURL renders the scan URL for token as a base64 PNG data URL.
func (e *Encoder) DataURL(token string) (string, error) {
	png, err := e.PNG(token)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
