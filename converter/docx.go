package converter

// docx.go: DOCX to HTML.
//
// DOCX files are ZIP archives containing OOXML. The main document lives at
// word/document.xml; images and hyperlink targets are resolved through
// word/_rels/document.xml.rels and list kinds through word/numbering.xml.
// The document is stream-parsed into semantic HTML (headings, paragraphs,
// nested lists, tables, links, images) which the Markdown renderer consumes.

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const (
	docxDocument  = "word/document.xml"
	docxRels      = "word/_rels/document.xml.rels"
	docxNumbering = "word/numbering.xml"
)

// docxPackage is an opened DOCX archive with its relationships and list
// definitions resolved.
type docxPackage struct {
	files map[string]*zip.File
	rels  map[string]docxRel

	// ordered[numID][ilvl] reports a numbered (not bulleted) list level.
	ordered map[string]map[int]bool
}

type docxRel struct {
	Target   string
	External bool
}

// docxToHTML renders the document body of the DOCX at filePath as HTML.
// Embedded images are returned in first-reference order, named image_N.ext.
func docxToHTML(filePath string) (string, []Image, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	pkg := &docxPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		pkg.files[f.Name] = f
	}
	docFile, ok := pkg.files[docxDocument]
	if !ok {
		return "", nil, fmt.Errorf("%s not found in %s", docxDocument, filePath)
	}
	if pkg.rels, err = pkg.readRels(); err != nil {
		return "", nil, err
	}
	if pkg.ordered, err = pkg.readNumbering(); err != nil {
		return "", nil, err
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	p := &docxParser{pkg: pkg, imageIDs: make(map[string]string)}
	if err := p.parse(rc); err != nil {
		return "", nil, err
	}
	return p.out.String(), p.images, nil
}

func (pkg *docxPackage) read(name string) ([]byte, bool, error) {
	f, ok := pkg.files[name]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, true, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, true, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

func (pkg *docxPackage) readRels() (map[string]docxRel, error) {
	rels := make(map[string]docxRel)
	data, ok, err := pkg.read(docxRels)
	if err != nil || !ok {
		return rels, err
	}
	var doc struct {
		Rels []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
			Mode   string `xml:"TargetMode,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxRels, err)
	}
	for _, r := range doc.Rels {
		rels[r.ID] = docxRel{Target: r.Target, External: strings.EqualFold(r.Mode, "External")}
	}
	return rels, nil
}

func (pkg *docxPackage) readNumbering() (map[string]map[int]bool, error) {
	ordered := make(map[string]map[int]bool)
	data, ok, err := pkg.read(docxNumbering)
	if err != nil || !ok {
		return ordered, err
	}
	var doc struct {
		Abstract []struct {
			ID     string `xml:"abstractNumId,attr"`
			Levels []struct {
				Ilvl string `xml:"ilvl,attr"`
				Fmt  struct {
					Val string `xml:"val,attr"`
				} `xml:"numFmt"`
			} `xml:"lvl"`
		} `xml:"abstractNum"`
		Nums []struct {
			ID       string `xml:"numId,attr"`
			Abstract struct {
				Val string `xml:"val,attr"`
			} `xml:"abstractNumId"`
		} `xml:"num"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxNumbering, err)
	}

	abstract := make(map[string]map[int]bool, len(doc.Abstract))
	for _, a := range doc.Abstract {
		levels := make(map[int]bool, len(a.Levels))
		for _, l := range a.Levels {
			lvl, err := strconv.Atoi(l.Ilvl)
			if err != nil {
				continue
			}
			switch l.Fmt.Val {
			case "", "bullet", "none":
			default:
				levels[lvl] = true
			}
		}
		abstract[a.ID] = levels
	}
	for _, n := range doc.Nums {
		if levels, ok := abstract[n.Abstract.Val]; ok {
			ordered[n.ID] = levels
		}
	}
	return ordered, nil
}

// ---------------------------------------------------------------------------
// Streaming XML parser
// ---------------------------------------------------------------------------

type listFrame struct {
	ordered  bool
	itemOpen bool
}

type docxParser struct {
	pkg *docxPackage
	out strings.Builder

	// element name stack for context queries
	stack []string

	// paragraph state
	inPara    bool
	paraStyle string
	isList    bool
	numID     string
	listLevel int
	paraHTML  strings.Builder

	// run state
	inRun     bool
	runBold   bool
	runItal   bool
	runStrike bool
	runHTML   strings.Builder

	// alt text of the drawing being parsed
	drawingAlt string

	// open lists, outermost first
	lists []listFrame

	// table state; nested tables are flattened into the outer cell
	tableDepth int
	rows       [][]string
	currRow    []string
	inCell     bool
	cellHTML   strings.Builder

	// images keyed by relationship id, in first-reference order
	imageIDs map[string]string
	images   []Image
	err      error
}

func (p *docxParser) push(name string) { p.stack = append(p.stack, name) }
func (p *docxParser) pop() {
	if len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
	}
}
func (p *docxParser) inCtx(name string) bool {
	for _, s := range p.stack {
		if s == name {
			return true
		}
	}
	return false
}

// parent returns the local name of the element enclosing the current one.
func (p *docxParser) parent() string {
	if len(p.stack) < 2 {
		return ""
	}
	return p.stack[len(p.stack)-2]
}

func (p *docxParser) parse(r io.Reader) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			p.push(t.Name.Local)
			// mc:Fallback repeats the content of mc:Choice.
			if !p.inCtx("Fallback") {
				p.handleStart(t)
			}
		case xml.EndElement:
			if !p.inCtx("Fallback") {
				p.handleEnd(t.Name.Local)
			}
			p.pop()
		case xml.CharData:
			if !p.inCtx("Fallback") {
				p.handleText(string(t))
			}
		}
		if p.err != nil {
			return p.err
		}
	}
	p.closeLists()
	return nil
}

func (p *docxParser) handleStart(t xml.StartElement) {
	switch t.Name.Local {

	// --- table ---
	case "tbl":
		p.tableDepth++
		if p.tableDepth == 1 {
			p.closeLists()
			p.rows = nil
		}
	case "tr":
		if p.tableDepth == 1 {
			p.currRow = nil
		}
	case "tc":
		if p.tableDepth == 1 {
			p.inCell = true
			p.cellHTML.Reset()
		}

	// --- paragraph ---
	case "p":
		p.inPara = true
		p.paraStyle = ""
		p.isList = false
		p.numID = ""
		p.listLevel = 0
		p.paraHTML.Reset()
	case "pStyle":
		if p.inPara && p.inCtx("pPr") {
			p.paraStyle = attrVal(t, "val")
		}
	case "numPr":
		if p.inPara && p.inCtx("pPr") {
			p.isList = true
		}
	case "numId":
		if p.inPara && p.inCtx("numPr") {
			p.numID = attrVal(t, "val")
			// numId 0 removes numbering inherited from the style.
			p.isList = p.numID != "0"
		}
	case "ilvl":
		if p.inPara && p.inCtx("numPr") {
			p.listLevel, _ = strconv.Atoi(attrVal(t, "val"))
		}

	// --- hyperlink ---
	case "hyperlink":
		if p.inPara {
			href := ""
			if rel, ok := p.pkg.rels[attrVal(t, "id")]; ok {
				href = rel.Target
			} else if anchor := attrVal(t, "anchor"); anchor != "" {
				href = "#" + anchor
			}
			p.paraHTML.WriteString(`<a href="` + html.EscapeString(href) + `">`)
		}

	// --- run ---
	case "r":
		if p.inPara {
			p.inRun = true
			p.runBold = false
			p.runItal = false
			p.runStrike = false
			p.runHTML.Reset()
		}
	case "b":
		if p.inRun && p.inCtx("rPr") {
			p.runBold = toggleOn(t)
		}
	case "i":
		if p.inRun && p.inCtx("rPr") {
			p.runItal = toggleOn(t)
		}
	case "strike", "dstrike":
		if p.inRun && p.inCtx("rPr") {
			p.runStrike = toggleOn(t)
		}
	case "br", "cr":
		if p.inRun && p.parent() == "r" {
			p.runHTML.WriteString("<br>")
		}
	case "tab":
		if p.inRun && p.parent() == "r" {
			p.runHTML.WriteByte(' ')
		}

	// --- images ---
	case "docPr":
		p.drawingAlt = attrVal(t, "descr")
		if p.drawingAlt == "" {
			p.drawingAlt = attrVal(t, "title")
		}
	case "blip":
		p.image(attrVal(t, "embed"), p.drawingAlt)
	case "imagedata":
		p.image(attrVal(t, "id"), attrVal(t, "title"))
	}
}

func (p *docxParser) handleEnd(local string) {
	switch local {

	case "r":
		if p.inRun {
			p.paraHTML.WriteString(wrapInline(p.runHTML.String(), p.runBold, p.runItal, p.runStrike))
			p.inRun = false
		}

	case "hyperlink":
		if p.inPara {
			p.paraHTML.WriteString("</a>")
		}

	case "drawing", "pict":
		p.drawingAlt = ""

	case "p":
		if p.inPara {
			p.endParagraph(strings.TrimSpace(p.paraHTML.String()))
			p.inPara = false
		}

	case "tc":
		if p.tableDepth == 1 {
			p.currRow = append(p.currRow, strings.TrimSpace(p.cellHTML.String()))
			p.inCell = false
			p.cellHTML.Reset()
		}

	case "tr":
		if p.tableDepth == 1 {
			p.rows = append(p.rows, p.currRow)
			p.currRow = nil
		}

	case "tbl":
		if p.tableDepth == 1 {
			p.out.WriteString(renderTable(p.rows))
			p.rows = nil
		}
		if p.tableDepth > 0 {
			p.tableDepth--
		}
	}
}

func (p *docxParser) handleText(text string) {
	if p.inRun && len(p.stack) > 0 && p.stack[len(p.stack)-1] == "t" {
		p.runHTML.WriteString(html.EscapeString(text))
	}
}

func (p *docxParser) endParagraph(content string) {
	if content == "" {
		return
	}
	if p.inCell {
		if p.cellHTML.Len() > 0 {
			p.cellHTML.WriteByte(' ')
		}
		p.cellHTML.WriteString(content)
		return
	}
	if p.tableDepth > 0 {
		return
	}

	if level := headingLevel(p.paraStyle); level > 0 {
		p.closeLists()
		fmt.Fprintf(&p.out, "<h%d>%s</h%d>\n", level, content, level)
		return
	}
	if p.isList {
		p.listItem(p.listLevel, p.pkg.ordered[p.numID][p.listLevel], content)
		return
	}
	p.closeLists()
	p.out.WriteString("<p>" + content + "</p>\n")
}

// listItem opens an item at level (0-based), opening or closing nested lists
// as needed. Each frame keeps its last item open so deeper lists nest inside.
func (p *docxParser) listItem(level int, ordered bool, content string) {
	if level < 0 {
		level = 0
	}
	depth := level + 1
	for len(p.lists) > depth {
		p.closeList()
	}
	if len(p.lists) == depth {
		top := &p.lists[len(p.lists)-1]
		if top.ordered != ordered {
			p.closeList()
		} else if top.itemOpen {
			p.out.WriteString("</li>")
			top.itemOpen = false
		}
	}
	for len(p.lists) < depth {
		if n := len(p.lists); n > 0 && !p.lists[n-1].itemOpen {
			p.out.WriteString("<li>")
			p.lists[n-1].itemOpen = true
		}
		// Intermediate levels take the kind of the item being placed.
		p.out.WriteString(listTag(ordered, false))
		p.lists = append(p.lists, listFrame{ordered: ordered})
	}
	p.out.WriteString("<li>" + content)
	p.lists[len(p.lists)-1].itemOpen = true
}

func (p *docxParser) closeList() {
	top := p.lists[len(p.lists)-1]
	if top.itemOpen {
		p.out.WriteString("</li>")
	}
	p.out.WriteString(listTag(top.ordered, true) + "\n")
	p.lists = p.lists[:len(p.lists)-1]
}

func (p *docxParser) closeLists() {
	for len(p.lists) > 0 {
		p.closeList()
	}
}

// image writes an <img> for the media part behind relationship rid into the
// current run. External and missing parts are skipped.
func (p *docxParser) image(rid, alt string) {
	if !p.inRun || rid == "" {
		return
	}
	id, ok := p.imageIDs[rid]
	if !ok {
		rel, found := p.pkg.rels[rid]
		if !found || rel.External {
			return
		}
		name := strings.TrimPrefix(rel.Target, "/")
		if !strings.HasPrefix(rel.Target, "/") {
			name = path.Join("word", rel.Target)
		}
		data, exists, err := p.pkg.read(name)
		if err != nil {
			p.err = err
			return
		}
		if !exists {
			return
		}
		id = fmt.Sprintf("image_%d.%s", len(p.images)+1, imageExt(name))
		p.imageIDs[rid] = id
		p.images = append(p.images, Image{ID: id, Data: data})
	}
	alt = strings.NewReplacer("[", "", "]", "").Replace(alt)
	p.runHTML.WriteString(`<img src="` + html.EscapeString(id) + `" alt="` + html.EscapeString(alt) + `">`)
}

// ---------------------------------------------------------------------------
// Rendering helpers
// ---------------------------------------------------------------------------

func headingLevel(style string) int {
	switch style {
	case "Title":
		return 1
	case "Heading1", "Heading2", "Heading3", "Heading4", "Heading5", "Heading6":
		return int(style[len(style)-1] - '0')
	}
	return 0
}

func listTag(ordered, closing bool) string {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	if closing {
		return "</" + tag + ">"
	}
	return "<" + tag + ">"
}

// renderTable emits rows as an HTML table whose first row is the header.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	maxCols := 0
	for _, row := range rows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}
	if maxCols == 0 {
		return ""
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<table><thead><tr>")
	for i := 0; i < maxCols; i++ {
		sb.WriteString("<th>" + cell(rows[0], i) + "</th>")
	}
	sb.WriteString("</tr></thead><tbody>")
	for _, row := range rows[1:] {
		sb.WriteString("<tr>")
		for i := 0; i < maxCols; i++ {
			sb.WriteString("<td>" + cell(row, i) + "</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>\n")
	return sb.String()
}

func wrapInline(content string, bold, italic, strike bool) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if strike {
		content = "<del>" + content + "</del>"
	}
	if italic {
		content = "<em>" + content + "</em>"
	}
	if bold {
		content = "<strong>" + content + "</strong>"
	}
	return content
}

// toggleOn reads an OOXML on/off property such as <w:b/> or <w:b w:val="0"/>.
func toggleOn(t xml.StartElement) bool {
	switch attrVal(t, "val") {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

// imageExt returns the lower-cased extension of a media part, with jpeg
// spelled jpg.
func imageExt(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch ext {
	case "":
		return "bin"
	case "jpeg":
		return "jpg"
	}
	return ext
}

func attrVal(t xml.StartElement, localName string) string {
	for _, a := range t.Attr {
		if a.Name.Local == localName {
			return a.Value
		}
	}
	return ""
}
