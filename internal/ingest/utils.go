package ingest

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/medical-lab/constants"
)

// AllowedExt checks if a file extension is one the extractor accepts.
func AllowedExt(ext string) bool {
	return constants.KindForExt(constants.NormalizeExt(ext)) != constants.KindUnknown
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}

// mimeForPath guesses a MIME type from the extension. Types the dispatcher
// does not allow-list (system tables vary) come back as "".
func mimeForPath(path string) string {
	m := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if constants.KindForMIME(m) == constants.KindUnknown {
		return ""
	}
	return m
}
