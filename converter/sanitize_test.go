package converter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStem(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"Report (final).pdf", "Report (final)"},
		{"/data/in/My  Doc.docx", "My Doc"},
		{`C:\Users\me\memo.doc`, "memo"},
		{"a<b>c:d|e?f*g\".pdf", "abcdefg"},
		{"tab\tand\nnewline.pdf", "tab and newline"},
		{"  padded . .pdf", "padded"},
		{"{braces}.pdf", "{braces}"},
		{"archive.tar.pdf", "archive.tar"},
		{".hidden", "hidden"},
		{"...pdf", defaultStem},
		{"???.pdf", defaultStem},
		{"", defaultStem},
		{"CON.pdf", "CON_"},
		{"lpt1.docx", "lpt1_"},
		{"보고서 (최종).pdf", "보고서 (최종)"},
	} {
		assert.Equal(t, tc.want, SanitizeStem(tc.in), "SanitizeStem(%q)", tc.in)
	}
}

func TestSanitizeStem_CapsLength(t *testing.T) {
	long := strings.Repeat("a", 249)
	assert.Equal(t, strings.Repeat("a", maxStemBytes), SanitizeStem(long+".pdf"))

	// 3-byte runes: the cut lands on a rune boundary below the cap.
	korean := strings.Repeat("보", 100)
	got := SanitizeStem(korean + ".pdf")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("보", maxStemBytes/3), got)

	// Trailing spaces exposed by the cut are trimmed.
	assert.Equal(t, strings.Repeat("b", maxStemBytes-1), SanitizeStem(strings.Repeat("b", maxStemBytes-1)+"  tail.pdf"))
}

func TestNeedsMarkdownEscaping(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{"report_images/image_1.png", false},
		{"Report (final)_images/_page_0_Picture_1.jpeg", true},
		{"a b", true},
		{"a\tb", true},
		{"{x}", true},
		{"x)", true},
		{"", false},
	} {
		assert.Equal(t, tc.want, NeedsMarkdownEscaping(tc.in), "NeedsMarkdownEscaping(%q)", tc.in)
	}
}

func TestEscapeForMarkdown(t *testing.T) {
	assert.Equal(t, "<Report (final)_images/_page_0_Picture_1.jpeg>",
		EscapeForMarkdown("Report (final)_images/_page_0_Picture_1.jpeg"))
	assert.Equal(t, "plain_images/x.png", EscapeForMarkdown("plain_images/x.png"))
}

func TestSanitizeImageID(t *testing.T) {
	assert.Equal(t, "_page_0_Picture_1.jpeg", sanitizeImageID("_page_0_Picture_1.jpeg"))
	assert.Equal(t, "a_b.png", sanitizeImageID("a/b.png"))
	assert.Equal(t, "_x.png", sanitizeImageID(`...\x.png`))
	assert.Equal(t, "image", sanitizeImageID(" . "))
}
