package converter

// pdf_fitz.go: PDF rendering through MuPDF (github.com/gen2brain/go-fitz).
// Each page is exported as HTML with embedded images, the images are lifted
// out into Result.Images, and the page HTML is converted to Markdown.

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pictureKind is the block kind used in extracted image ids.
const pictureKind = "Picture"

// imageExts maps data URI media types to image id extensions.
var imageExts = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

type fitzEngine struct {
	md *markdownRenderer
}

func newFitzEngine() *fitzEngine { return &fitzEngine{md: newMarkdownRenderer()} }

func (*fitzEngine) Kind() EngineKind { return EnginePDF }
func (*fitzEngine) Close() error     { return nil }

func (e *fitzEngine) Render(ctx context.Context, path string) (*Result, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = doc.Close() }()

	res := &Result{SourcePath: path}
	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := doc.HTML(i, false)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i, err)
		}
		body, images, err := extractPageImages(page, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text, err := e.md.Convert(body)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		res.Images = append(res.Images, images...)
		if text != "" {
			pages = append(pages, text)
		}
	}
	res.Markdown = strings.Join(pages, "\n\n")
	return res, nil
}

// extractPageImages decodes every data URI image in a page's HTML, replaces
// its src with the image id, and returns the rewritten HTML. Images that
// cannot be decoded are removed from the page.
func extractPageImages(page string, pageNum int) (string, []Image, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", nil, fmt.Errorf("parse page html: %w", err)
	}

	var images []Image
	var drop []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if i := attrIndex(n, "src"); i >= 0 && strings.HasPrefix(n.Attr[i].Val, "data:") {
				data, ext, ok := decodeDataURI(n.Attr[i].Val)
				if !ok {
					drop = append(drop, n)
				} else {
					id := fmt.Sprintf("_page_%d_%s_%d.%s", pageNum, pictureKind, len(images)+1, ext)
					images = append(images, Image{ID: id, Data: data})
					n.Attr[i].Val = id
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	for _, n := range drop {
		n.Parent.RemoveChild(n)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", nil, fmt.Errorf("render page html: %w", err)
	}
	return buf.String(), images, nil
}

func attrIndex(n *html.Node, key string) int {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return i
		}
	}
	return -1
}

// decodeDataURI decodes a base64 image data URI.
func decodeDataURI(uri string) ([]byte, string, bool) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", false
	}
	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", false
	}
	base64Encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			base64Encoded = true
		}
	}
	if !base64Encoded {
		return nil, "", false
	}
	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, "", false
	}

	ext, ok := imageExts[mediaType]
	if !ok {
		ext = sanitizeImageID(strings.TrimPrefix(mediaType, "image/"))
	}
	return data, ext, true
}
