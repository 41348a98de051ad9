// Package converter turns PDF, DOC and DOCX files into Markdown plus an
// images folder. Conversions go through a Converter, which owns the engine
// pool and dispatches on the source extension.
package converter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Cortexa-LLC/mcp/src/doc2md/config"
	"github.com/rs/zerolog"
)

// adapter converts one source format to a Result.
type adapter interface {
	Convert(ctx context.Context, path string) (*Result, error)
}

// Converter validates sources, dispatches them to the PDF or DOC/DOCX
// adapter, and materializes the Result on disk. It is safe for concurrent
// use.
type Converter struct {
	cfg      *config.Config
	pool     *Pool
	pdf      adapter
	doc      adapter
	exec     executor
	splitter pdfSplitter
	log      zerolog.Logger
}

// Option customizes a Converter.
type Option func(*Converter)

// WithLogger sets the logger used by the converter and its engines.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Converter) { c.log = log }
}

// WithPool shares an engine pool between converters. Factories already
// registered on the pool are kept.
func WithPool(p *Pool) Option {
	return func(c *Converter) { c.pool = p }
}

func withExecutor(ex executor) Option {
	return func(c *Converter) { c.exec = ex }
}

func withSplitter(s pdfSplitter) Option {
	return func(c *Converter) { c.splitter = s }
}

func withAdapters(pdf, doc adapter) Option {
	return func(c *Converter) { c.pdf, c.doc = pdf, doc }
}

// New creates a Converter. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) *Converter {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Converter{
		cfg:      cfg,
		exec:     osExecutor{},
		splitter: pdfcpuSplitter{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = NewPool(c.log)
	}
	if !c.pool.Registered(EnginePDF) {
		c.pool.Register(EnginePDF, newPDFFactory(cfg.PDFBackend))
	}
	if !c.pool.Registered(EngineOffice) {
		c.pool.Register(EngineOffice, newOfficeFactory(c.exec, cfg.OfficeBinary))
	}

	if c.pdf == nil {
		var gate sync.Locker
		if !cfg.PDFConcurrentSafe {
			gate = &sync.Mutex{}
		}
		c.pdf = &pdfAdapter{
			pool:     c.pool,
			gate:     gate,
			splitter: c.splitter,
			split2:   cfg.SplitThreshold2,
			split4:   cfg.SplitThreshold4,
			timeout:  cfg.PartTimeout,
			log:      c.log,
		}
	}
	if c.doc == nil {
		c.doc = &docAdapter{pool: c.pool, md: newMarkdownRenderer(), log: c.log}
	}
	return c
}

func newPDFFactory(backend string) Factory {
	return func(context.Context) (Engine, error) {
		if backend == config.BackendText {
			return newTextEngine(), nil
		}
		return newFitzEngine(), nil
	}
}

// Pool returns the converter's engine pool.
func (c *Converter) Pool() *Pool { return c.pool }

// Convert converts req.SourcePath and returns the path of the written
// Markdown file.
func (c *Converter) Convert(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	log := c.log.With().Str("file", req.SourcePath).Logger()

	res, err := c.Render(ctx, req.SourcePath)
	if err != nil {
		log.Error().Err(err).Str("kind", string(KindOf(err))).Msg("conversion failed")
		return "", err
	}

	root := req.OutputRoot
	if root == "" {
		root = c.cfg.OutputDir
	}
	out, err := materialize(res, root, req.InlineImages)
	if err != nil {
		log.Error().Err(err).Msg("writing output failed")
		return "", err
	}

	ev := log.Info().Str("output", out).Int("images", len(res.Images)).Dur("elapsed", time.Since(start))
	if res.Parts.Parts > 0 {
		ev = ev.Int("parts", res.Parts.Parts).Int("parts_failed", res.Parts.Failed)
	}
	ev.Msg("converted")
	return out, nil
}

// ConvertFile converts path into the configured output directory.
func (c *Converter) ConvertFile(ctx context.Context, path string) (string, error) {
	return c.Convert(ctx, Request{SourcePath: path})
}

// Render converts path to a Result without writing anything. Unsupported
// formats are rejected before the source is opened or any engine is built.
func (c *Converter) Render(ctx context.Context, path string) (*Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if err := c.validateSource(path); err != nil {
		return nil, err
	}
	c.log.Debug().Str("file", path).Str("format", format.String()).Msg("converting")

	var res *Result
	switch format {
	case FormatPDF:
		res, err = c.pdf.Convert(ctx, path)
	case FormatDOC, FormatDOCX:
		res, err = c.doc.Convert(ctx, path)
	default:
		return nil, newError(KindUnsupportedFormat, path, "no adapter for %s", format)
	}
	if err != nil {
		return nil, withPath(err, KindEngineFailure, path)
	}
	res.SourcePath = path
	return res, nil
}

func (c *Converter) validateSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return wrapError(KindInvalidInput, path, err, "source not readable")
	}
	if !info.Mode().IsRegular() {
		return newError(KindInvalidInput, path, "source is not a regular file")
	}
	if limit := c.cfg.MaxFileSizeBytes; limit > 0 && info.Size() > limit {
		return newError(KindInvalidInput, path, "file too large: %d bytes (max %d)", info.Size(), limit)
	}
	return nil
}

// Info returns a Markdown summary of supported formats and configuration.
func (c *Converter) Info() string {
	ready := make([]string, 0, 2)
	for _, k := range c.pool.Ready() {
		ready = append(ready, string(k))
	}
	engines := "none"
	if len(ready) > 0 {
		engines = strings.Join(ready, ", ")
	}
	concurrency := "serialized"
	if c.cfg.PDFConcurrentSafe {
		concurrency = "concurrent"
	}
	office := c.cfg.OfficeBinary
	if office == "" {
		office = strings.Join(officeCandidates, " or ") + " on PATH"
	}

	return fmt.Sprintf(`# doc2md Conversion Info

## Supported Formats
%s

## Configuration
- Output directory: %s
- Max file size: %d MB
- PDF backend: %s (%s)
- Split: 2 parts from %d MB, 4 parts from %d MB
- Part timeout: %s
- Office converter: %s

## Engines
- Initialized: %s`,
		"- "+strings.Join(SupportedFormats(), "\n- "),
		c.cfg.OutputDir,
		c.cfg.MaxFileSizeMB(),
		c.cfg.PDFBackend, concurrency,
		c.cfg.SplitThreshold2>>20, c.cfg.SplitThreshold4>>20,
		c.cfg.PartTimeout,
		office,
		engines,
	)
}

// Close releases every pooled engine.
func (c *Converter) Close() error {
	return c.pool.Close()
}
