package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// visionMIMETypes are the formats vision endpoints accept as-is.
var visionMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// EncodeImage returns the bytes and MIME type to send to a vision model.
// Accepted formats keep their own encoding; others (bmp, tiff) are re-encoded as PNG.
func EncodeImage(img []byte) ([]byte, string, error) {
	mt := http.DetectContentType(img)
	if visionMIMETypes[mt] {
		return img, mt, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, "", fmt.Errorf("decode image for vision: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, "", fmt.Errorf("encode png for vision: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// DataURL builds a data: URL for an image payload.
func DataURL(img []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img)
}

// ImageSize reports the pixel size of img, or 1000x1000 if it cannot be read.
func ImageSize(img []byte) (float64, float64) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 1000, 1000
	}
	return float64(cfg.Width), float64(cfg.Height)
}

// StripFences removes a surrounding ``` block some models add despite instructions.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
