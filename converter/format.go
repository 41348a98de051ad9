package converter

import (
	"path/filepath"
	"strings"
)

// Format is the closed set of accepted source formats.
type Format int

const (
	FormatUnsupported Format = iota
	FormatPDF
	FormatDOC
	FormatDOCX
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOC:
		return "doc"
	case FormatDOCX:
		return "docx"
	default:
		return "unsupported"
	}
}

// sourceExts maps lower-cased extensions to formats.
var sourceExts = map[string]Format{
	".pdf":  FormatPDF,
	".doc":  FormatDOC,
	".docx": FormatDOCX,
}

// DetectFormat classifies path by its extension, case-insensitively.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := sourceExts[ext]; ok {
		return f, nil
	}
	if ext == "" {
		return FormatUnsupported, newError(KindUnsupportedFormat, path, "file has no extension")
	}
	return FormatUnsupported, newError(KindUnsupportedFormat, path, "extension %q is not one of pdf, doc, docx", ext)
}

// IsSupported reports whether path has an accepted extension.
func IsSupported(path string) bool {
	f, _ := DetectFormat(path)
	return f != FormatUnsupported
}

// SupportedFormats returns the accepted extensions without the leading dot.
func SupportedFormats() []string {
	return []string{"pdf", "doc", "docx"}
}
