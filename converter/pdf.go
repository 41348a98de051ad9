package converter

// pdf.go: PDF adapter. Runs the pooled PDF engine under a per-call timeout,
// splits large files into page ranges, and merges the partial results.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// partSeparator joins the Markdown of split parts and of text-layer pages.
const partSeparator = "\n\n---\n\n"

// PDFEngine renders one PDF file. Image references in the returned Markdown
// are bare image ids.
type PDFEngine interface {
	Engine
	Render(ctx context.Context, path string) (*Result, error)
}

// textEngine extracts the embedded text layer with github.com/ledongthuc/pdf.
// It produces no images; scanned PDFs yield empty output.
type textEngine struct{}

func newTextEngine() *textEngine { return &textEngine{} }

func (*textEngine) Kind() EngineKind { return EnginePDF }
func (*textEngine) Close() error     { return nil }

func (*textEngine) Render(ctx context.Context, path string) (*Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	numPages := r.NumPage()
	fonts := make(map[string]*pdf.Font)
	var pages []string

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	return &Result{SourcePath: path, Markdown: strings.Join(pages, partSeparator)}, nil
}

// pdfAdapter converts PDFs through whatever engine the pool holds for
// EnginePDF.
type pdfAdapter struct {
	pool     *Pool
	gate     sync.Locker // nil when the engine is safe for concurrent use
	splitter pdfSplitter
	split2   int64
	split4   int64
	timeout  time.Duration
	log      zerolog.Logger
}

// partsFor returns how many page ranges a file of size bytes is split into.
func (a *pdfAdapter) partsFor(size int64) int {
	switch {
	case a.split4 > 0 && size >= a.split4:
		return 4
	case a.split2 > 0 && size >= a.split2:
		return 2
	default:
		return 1
	}
}

// Convert renders path, splitting it first when it is large.
func (a *pdfAdapter) Convert(ctx context.Context, path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapError(KindInvalidInput, path, err, "stat source")
	}
	if n := a.partsFor(info.Size()); n > 1 && a.splitter != nil {
		return a.convertSplit(ctx, path, n)
	}
	return a.renderOnce(ctx, path)
}

// renderOnce runs one engine call. A panic or an error wrapping
// ErrEngineFatal drops the engine from the pool. A timed out engine is
// evicted and closed once its call returns.
//
// A started call is not interrupted when ctx is cancelled; only the part
// timeout ends it early.
func (a *pdfAdapter) renderOnce(ctx context.Context, path string) (*Result, error) {
	// The engine is acquired under the gate so a call never gets an engine
	// that an earlier call invalidated while this one was waiting.
	if a.gate != nil {
		a.gate.Lock()
		defer a.gate.Unlock()
	}

	eng, err := a.pool.Acquire(ctx, EnginePDF)
	if err != nil {
		return nil, withPath(err, KindEngineFailure, path)
	}
	pe, ok := eng.(PDFEngine)
	if !ok {
		return nil, newError(KindEngineFailure, path, "pooled engine %T cannot render pdf", eng)
	}

	ctx = context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrEngineFatal, r)}
			}
		}()
		res, err := pe.Render(ctx, path)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, ErrEngineFatal) {
				a.pool.Invalidate(EnginePDF)
			}
			return nil, wrapError(KindEngineFailure, path, o.err, "pdf engine")
		}
		if o.res == nil {
			o.res = &Result{}
		}
		o.res.SourcePath = path
		return o.res, nil
	case <-ctx.Done():
		if a.pool.Evict(EnginePDF, eng) {
			go func() {
				<-done
				if err := eng.Close(); err != nil {
					a.log.Warn().Err(err).Msg("closing timed out pdf engine")
				}
			}()
		}
		return nil, wrapError(KindEngineFailure, path, ctx.Err(), "pdf engine did not finish")
	}
}

// convertSplit renders n page ranges of path one after another. Parts that
// fail are skipped; the conversion fails only when every part does.
func (a *pdfAdapter) convertSplit(ctx context.Context, path string, n int) (*Result, error) {
	total, err := a.splitter.PageCount(path)
	if err != nil {
		a.log.Warn().Err(err).Str("file", path).Msg("page count failed, converting without split")
		return a.renderOnce(ctx, path)
	}
	if n > total {
		n = total
	}
	if n < 2 {
		return a.renderOnce(ctx, path)
	}

	dir, err := os.MkdirTemp("", "doc2md-split-*")
	if err != nil {
		return nil, wrapError(KindOutputWriteFailure, path, err, "create split directory")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	perPart := (total + n - 1) / n
	stem := SanitizeStem(path)
	out := &Result{SourcePath: path}
	var texts []string
	var lastErr error

	for k := 0; k*perPart < total; k++ {
		if err := ctx.Err(); err != nil {
			return nil, wrapError(KindEngineFailure, path, err, "conversion cancelled")
		}
		part := k + 1
		from, to := k*perPart+1, min((k+1)*perPart, total)
		out.Parts.Parts++
		plog := a.log.With().Str("file", path).Int("part", part).Int("from", from).Int("to", to).Logger()

		partPath := filepath.Join(dir, fmt.Sprintf("%s_part%d.pdf", stem, part))
		if err := a.splitter.Extract(path, partPath, from, to); err != nil {
			plog.Warn().Err(err).Msg("extracting page range failed, skipping part")
			out.Parts.Failed++
			lastErr = err
			continue
		}
		res, err := a.renderOnce(ctx, partPath)
		if err != nil {
			plog.Warn().Err(err).Msg("part conversion failed, skipping part")
			out.Parts.Failed++
			lastErr = err
			continue
		}
		out.Parts.Succeeded++
		plog.Info().Int("images", len(res.Images)).Msg("part converted")

		texts = append(texts, prefixImages(res, fmt.Sprintf("part%d_", part)))
		out.Images = append(out.Images, res.Images...)
	}

	if out.Parts.Succeeded == 0 {
		return nil, wrapError(KindEngineFailure, path, lastErr, "all %d parts failed", out.Parts.Parts)
	}
	out.Markdown = strings.Join(texts, partSeparator)
	return out, nil
}

// prefixImages renames every image in res with prefix, rewrites the matching
// references, and returns the rewritten Markdown.
func prefixImages(res *Result, prefix string) string {
	renamed := make(map[string]string, len(res.Images))
	for i := range res.Images {
		id := res.Images[i].ID
		renamed[id] = prefix + id
		res.Images[i].ID = prefix + id
	}
	return rewriteImageRefs(res.Markdown, func(dest string) (string, bool) {
		id, ok := renamed[dest]
		return id, ok
	})
}
