package converter

// markdown.go: HTML to Markdown rendering shared by the DOCX and PDF page
// paths, and rewriting of image destinations in rendered Markdown.

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/microcosm-cc/bluemonday"
)

// markdownRenderer sanitizes HTML and converts it to Markdown with ATX
// headings, dash bullets and GFM tables.
type markdownRenderer struct {
	conv   *md.Converter
	policy *bluemonday.Policy
}

func newMarkdownRenderer() *markdownRenderer {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
		StrongDelimiter:  "**",
	})
	conv.Use(plugin.GitHubFlavored())
	conv.Remove("script", "style")

	policy := bluemonday.UGCPolicy()
	policy.AllowRelativeURLs(true)
	policy.AllowAttrs("alt", "src").OnElements("img")

	return &markdownRenderer{conv: conv, policy: policy}
}

// Convert renders an HTML fragment as Markdown.
func (r *markdownRenderer) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	out, err := r.conv.ConvertString(r.policy.Sanitize(html))
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// imageRefRE matches a Markdown image: alt text, destination (bare or in
// angle brackets) and optional title.
var imageRefRE = regexp.MustCompile(`!\[([^\]]*)\]\((<[^>\n]*>|[^)\s]*)((?:\s+"[^"]*")?)\)`)

// rewriteImageRefs replaces the destination of every Markdown image for which
// fn returns ok. fn receives the destination as written.
func rewriteImageRefs(markdown string, fn func(dest string) (string, bool)) string {
	return imageRefRE.ReplaceAllStringFunc(markdown, func(m string) string {
		sub := imageRefRE.FindStringSubmatch(m)
		dest, ok := fn(sub[2])
		if !ok {
			return m
		}
		return "![" + sub[1] + "](" + dest + sub[3] + ")"
	})
}

// imageRefs returns the destinations of every Markdown image in order.
func imageRefs(markdown string) []string {
	var out []string
	for _, sub := range imageRefRE.FindAllStringSubmatch(markdown, -1) {
		out = append(out, sub[2])
	}
	return out
}
