package converter

// sanitize.go: output naming. Stems name the per-document folder and its
// files; escaping keeps image destinations valid CommonMark.

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// illegalNameChars cannot appear in a file name on at least one supported OS.
const illegalNameChars = `<>:"/\|?*`

// defaultStem is used when nothing printable survives sanitizing.
const defaultStem = "document"

// maxStemBytes leaves room for the "_images" suffix and temporary names
// within the 255 byte file name limit of common file systems.
const maxStemBytes = 200

// windowsReserved are device names that cannot be used as a file stem.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeStem turns a source file name (or path) into a folder and file
// stem. The extension is dropped, characters illegal in file names and
// control characters are removed, runs of whitespace collapse to one space,
// and leading/trailing spaces and dots are trimmed. Spaces, parentheses and
// braces survive so the stem stays human readable. Stems longer than
// maxStemBytes are cut at a rune boundary.
func SanitizeStem(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}

	var b strings.Builder
	space := false
	for _, r := range base {
		switch {
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		case unicode.IsControl(r) || strings.ContainsRune(illegalNameChars, r):
			continue
		}
		space = false
		b.WriteRune(r)
	}

	stem := strings.Trim(truncateUTF8(b.String(), maxStemBytes), " .")
	if stem == "" {
		return defaultStem
	}
	if windowsReserved[strings.ToUpper(stem)] {
		stem += "_"
	}
	return stem
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NeedsMarkdownEscaping reports whether a link destination contains
// whitespace, braces or parentheses.
func NeedsMarkdownEscaping(fragment string) bool {
	return strings.IndexFunc(fragment, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("{}()", r)
	}) >= 0
}

// EscapeForMarkdown wraps fragment in angle brackets when it needs escaping.
func EscapeForMarkdown(fragment string) string {
	if NeedsMarkdownEscaping(fragment) {
		return "<" + fragment + ">"
	}
	return fragment
}

// sanitizeImageID keeps an engine-assigned image id usable as a file name
// inside the images folder.
func sanitizeImageID(id string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(illegalNameChars, r) {
			return '_'
		}
		return r
	}, id)
	clean = strings.Trim(clean, " .")
	if clean == "" {
		return "image"
	}
	return clean
}
