// Package qr renders menu QR codes. Stateless wrapper over skip2/go-qrcode;
// deliberately thin, no part of the generation core.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 512

// MenuURL builds the public menu address a QR code points at. table is
// optional.
func MenuURL(baseURL, tenantID, table string) string {
	url := fmt.Sprintf("%s/menu/%s", baseURL, tenantID)
	if table != "" {
		url += "?table=" + table
	}
	return url
}

// MenuPNG encodes the menu URL as a PNG with medium error correction.
// size <= 0 uses the 512px default.
func MenuPNG(baseURL, tenantID, table string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(MenuURL(baseURL, tenantID, table), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate qr code: %w", err)
	}
	return png, nil
}
