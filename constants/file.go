package constants

import (
	"mime"
	"sort"
	"strings"
)

// FileType is the reported type of an extracted file.
type FileType string

const (
	PDF   FileType = "PDF"
	TXT   FileType = "TXT"
	DOCX  FileType = "DOCX"
	IMAGE FileType = "IMAGE"
)

// FileTypes holds every FileType in display order.
var FileTypes = []FileType{PDF, TXT, DOCX, IMAGE}

// Kind is the routing class computed by the dispatcher.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// extKinds maps a normalized extension (no dot) to its kind.
var extKinds = map[string]Kind{
	"pdf":  KindPDF,
	"txt":  KindText,
	"doc":  KindText,
	"docx": KindText,
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"gif":  KindImage,
	"bmp":  KindImage,
	"tif":  KindImage,
	"tiff": KindImage,
}

// AllowedMIMETypes is the MIME allow-list checked before the generic fallback.
var AllowedMIMETypes = map[string]Kind{
	"application/pdf":    KindPDF,
	"text/plain":         KindText,
	"application/msword": KindText,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindText,
	"image/png":  KindImage,
	"image/jpeg": KindImage,
	"image/jpg":  KindImage,
	"image/gif":  KindImage,
	"image/bmp":  KindImage,
	"image/tiff": KindImage,
}

var genericMIMETypes = map[string]struct{}{
	"":                         {},
	"application/octet-stream": {},
	"content/unknown":          {},
	"binary/octet-stream":      {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// KindForExt returns the kind for an extension, with or without the dot.
func KindForExt(ext string) Kind {
	if k, ok := extKinds[NormalizeExt(ext)]; ok {
		return k
	}
	return KindUnknown
}

// BaseMIME strips parameters ("; charset=...") and lowercases the media type.
// Unparseable values are reduced to the text before the first ';'.
func BaseMIME(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return strings.ToLower(mt)
	}
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// IsGenericMIME reports whether m carries no useful type information.
func IsGenericMIME(m string) bool {
	_, ok := genericMIMETypes[BaseMIME(m)]
	return ok
}

// KindForMIME returns the kind for an allow-listed MIME type.
func KindForMIME(m string) Kind {
	if k, ok := AllowedMIMETypes[BaseMIME(m)]; ok {
		return k
	}
	return KindUnknown
}

// FileTypeForExt picks the reported FileType for a routed file.
func FileTypeForExt(ext string, kind Kind) FileType {
	switch kind {
	case KindPDF:
		return PDF
	case KindImage:
		return IMAGE
	case KindText:
		switch NormalizeExt(ext) {
		case "doc", "docx":
			return DOCX
		}
		return TXT
	}
	return ""
}

// SupportedExtensions lists accepted extensions with a leading dot, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extKinds))
	for ext := range extKinds {
		out = append(out, "."+ext)
	}
	sort.Strings(out)
	return out
}

// IsImageExt reports whether ext routes to image OCR.
func IsImageExt(ext string) bool {
	return KindForExt(ext) == KindImage
}
