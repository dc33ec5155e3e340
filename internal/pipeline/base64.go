package pipeline

import (
	"encoding/base64"
	"strings"

	"github.com/joseph-ayodele/medical-lab/internal/common"
)

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeBase64Image accepts a bare base64 string or a data: URL and returns
// the decoded bytes and the MIME type named in the URL, if any.
func DecodeBase64Image(payload string) ([]byte, string, error) {
	s := strings.TrimSpace(payload)
	mimeType := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", common.InvalidInputf("malformed data url")
		}
		if !strings.HasSuffix(strings.ToLower(header), ";base64") {
			return nil, "", common.InvalidInputf("data url is not base64 encoded")
		}
		mimeType = strings.ToLower(strings.TrimSuffix(header[:len(header)-len(";base64")], ";"))
		s = body
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, "", common.InvalidInputf("image payload is empty")
	}
	for _, enc := range base64Encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return b, mimeType, nil
		}
	}
	return nil, "", common.InvalidInputf("image payload is not valid base64")
}
