package converter

// Shared test helpers for the converter package.

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ---- assertion helpers -----------------------------------------------------

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertErr(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func assertContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("expected output to contain %q\ngot: %s", want, got)
	}
}

// ---- file factories --------------------------------------------------------

// pngBytes is the PNG signature; enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

// writeTempFile writes content to a temp file with the given name and returns
// its path. The file is cleaned up automatically when the test ends.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTempFile: %v", err)
	}
	return path
}

const docxNamespaces = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture" ` +
	`xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" ` +
	`xmlns:v="urn:schemas-microsoft-com:vml" ` +
	`xmlns:o="urn:schemas-microsoft-com:office:office"`

// makeDocx builds a minimal .docx file containing the given OOXML body
// fragment and returns its path.
func makeDocx(t *testing.T, bodyXML string) string {
	t.Helper()
	return makeDocxParts(t, filepath.Join(t.TempDir(), "test.docx"), bodyXML, nil)
}

// makeDocxParts writes a .docx at path with the body fragment plus extra
// archive members (relationships, numbering, media).
func makeDocxParts(t *testing.T, path, bodyXML string, parts map[string][]byte) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("makeDocx create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document ` + docxNamespaces + `><w:body>` + bodyXML + `</w:body></w:document>`
	members := map[string][]byte{docxDocument: []byte(doc)}
	for name, data := range parts {
		members[name] = data
	}
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("makeDocx zip entry: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("makeDocx write: %v", err)
		}
	}
	return path
}

// relsXML builds word/_rels/document.xml.rels from id, target pairs. Targets
// starting with http are marked external.
func relsXML(pairs ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i := 0; i+1 < len(pairs); i += 2 {
		mode := ""
		if strings.HasPrefix(pairs[i+1], "http") {
			mode = ` TargetMode="External"`
		}
		b.WriteString(`<Relationship Id="` + pairs[i] + `" Target="` + pairs[i+1] + `"` + mode + `/>`)
	}
	b.WriteString(`</Relationships>`)
	return []byte(b.String())
}

// drawingXML is an inline image run referencing rid.
func drawingXML(rid, descr string) string {
	return `<w:r><w:drawing><wp:inline><wp:docPr id="1" name="Picture 1" descr="` + descr + `"/>` +
		`<a:graphic><a:graphicData><pic:pic><pic:blipFill><a:blip r:embed="` + rid + `"/>` +
		`</pic:blipFill></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`
}

// ---- fakes -----------------------------------------------------------------

// fakeEngine is a PDFEngine whose Render is supplied by the test.
type fakeEngine struct {
	kind   EngineKind
	render func(ctx context.Context, path string) (*Result, error)
	closed atomic.Bool
}

func (e *fakeEngine) Kind() EngineKind { return e.kind }
func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *fakeEngine) Render(ctx context.Context, path string) (*Result, error) {
	if e.render == nil {
		return &Result{}, nil
	}
	return e.render(ctx, path)
}

// countingFactory returns a factory that builds a new fakeEngine per call
// and records how many times it ran.
func countingFactory(calls *atomic.Int32, render func(ctx context.Context, path string) (*Result, error)) Factory {
	return func(context.Context) (Engine, error) {
		calls.Add(1)
		return &fakeEngine{kind: EnginePDF, render: render}, nil
	}
}

// fakeAdapter records the paths it was asked to convert.
type fakeAdapter struct {
	mu    sync.Mutex
	paths []string
	fn    func(path string) (*Result, error)
}

func (a *fakeAdapter) Convert(_ context.Context, path string) (*Result, error) {
	a.mu.Lock()
	a.paths = append(a.paths, path)
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(path)
	}
	return &Result{SourcePath: path, Markdown: "converted " + filepath.Base(path)}, nil
}

func (a *fakeAdapter) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

// fakeExecutor resolves only the binaries in found and runs run.
type fakeExecutor struct {
	found map[string]string
	run   func(name string, args []string) ([]byte, error)
}

func (e fakeExecutor) LookPath(file string) (string, error) {
	if p, ok := e.found[file]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (e fakeExecutor) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if e.run == nil {
		return nil, errors.New("unexpected command " + name)
	}
	return e.run(name, args)
}

// fakeSplitter reports pages and writes each extracted range as a small text
// file so the engine can tell parts apart.
type fakeSplitter struct {
	pages    int
	countErr error
	failFrom map[int]bool
}

func (s fakeSplitter) PageCount(string) (int, error) {
	return s.pages, s.countErr
}

func (s fakeSplitter) Extract(_, dst string, from, to int) error {
	if s.failFrom[from] {
		return errors.New("broken page range")
	}
	return os.WriteFile(dst, []byte(strings.Repeat("p", to-from+1)), 0o600)
}
