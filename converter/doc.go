package converter

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// docxConverter turns a legacy .doc into a .docx inside outDir.
type docxConverter interface {
	ToDOCX(ctx context.Context, src, outDir string) (string, error)
}

// docAdapter converts .docx directly and .doc through the pooled office
// engine. The intermediate .docx lives in a scratch directory removed
// after conversion.
type docAdapter struct {
	pool *Pool
	md   *markdownRenderer
	log  zerolog.Logger
}

func (a *docAdapter) Convert(ctx context.Context, path string) (*Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatDOCX {
		return a.convertDOCX(path, path)
	}

	eng, err := a.pool.Acquire(ctx, EngineOffice)
	if err != nil {
		return nil, withPath(err, KindEngineFailure, path)
	}
	office, ok := eng.(docxConverter)
	if !ok {
		return nil, newError(KindEngineFailure, path, "pooled engine %T cannot convert doc", eng)
	}

	dir, err := os.MkdirTemp("", "doc2md-doc-*")
	if err != nil {
		return nil, wrapError(KindOutputWriteFailure, path, err, "create scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			a.log.Warn().Err(err).Str("dir", dir).Msg("removing scratch docx")
		}
	}()

	docx, err := office.ToDOCX(ctx, path, dir)
	if err != nil {
		return nil, wrapError(KindEngineFailure, path, err, "convert doc to docx")
	}
	a.log.Debug().Str("file", path).Str("docx", docx).Msg("doc converted to docx")
	return a.convertDOCX(path, docx)
}

// convertDOCX renders docx and attributes the result to src.
func (a *docAdapter) convertDOCX(src, docx string) (*Result, error) {
	body, images, err := docxToHTML(docx)
	if err != nil {
		return nil, wrapError(KindEngineFailure, src, err, "read docx")
	}
	markdown, err := a.md.Convert(body)
	if err != nil {
		return nil, wrapError(KindEngineFailure, src, err, "render markdown")
	}
	return &Result{SourcePath: src, Markdown: markdown, Images: images}, nil
}
