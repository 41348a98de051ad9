package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownRenderer_Convert(t *testing.T) {
	out, err := newMarkdownRenderer().Convert(
		`<h1>Title</h1><p>Some <strong>bold</strong> and <em>soft</em> text.</p>` +
			`<script>alert(1)</script><style>p{}</style>` +
			`<ul><li>one</li><li>two</li></ul>` +
			`<p><img src="image_1.png" alt="chart"></p>`)

	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "**bold**")
	assert.Contains(t, out, "*soft*")
	assert.Contains(t, out, "- one")
	assert.Contains(t, out, "- two")
	assert.Contains(t, out, "![chart](image_1.png)")
	assert.NotContains(t, out, "alert")
}

func TestMarkdownRenderer_Table(t *testing.T) {
	out, err := newMarkdownRenderer().Convert(
		`<table><thead><tr><th>Name</th><th>Qty</th></tr></thead>` +
			`<tbody><tr><td>Widget</td><td>3</td></tr></tbody></table>`)

	require.NoError(t, err)
	assert.Contains(t, out, "| Name")
	assert.Contains(t, out, "Widget")
	assert.Contains(t, out, "---")
}

func TestMarkdownRenderer_Empty(t *testing.T) {
	out, err := newMarkdownRenderer().Convert("  \n ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRewriteImageRefs(t *testing.T) {
	in := `![a](x.png) ![b](y.png "Title") ![](<spaced name.png>) ![c](keep.png) [link](x.png)`
	out := rewriteImageRefs(in, func(dest string) (string, bool) {
		switch dest {
		case "x.png":
			return "dir/x.png", true
		case "y.png":
			return "<my dir/y.png>", true
		case "<spaced name.png>":
			return "s.png", true
		}
		return "", false
	})
	assert.Equal(t,
		`![a](dir/x.png) ![b](<my dir/y.png> "Title") ![](s.png) ![c](keep.png) [link](x.png)`, out)
}

func TestImageRefs(t *testing.T) {
	assert.Equal(t, []string{"a.png", "<b c.png>"}, imageRefs("![](a.png)\n\ntext ![alt](<b c.png>)"))
	assert.Empty(t, imageRefs("no images"))
}
