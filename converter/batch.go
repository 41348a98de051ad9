package converter

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchRequest converts every supported file in a directory.
type BatchRequest struct {
	InputDir string
	// OutputRoot defaults to InputDir. In recursive mode each source's
	// folder lands under OutputRoot at the source's relative directory.
	OutputRoot   string
	Recursive    bool
	InlineImages bool
	// Workers bounds concurrent conversions. Zero means the configured
	// worker count.
	Workers int
	// Progress, when set, is called after each item finishes. Calls are
	// serialized.
	Progress func(done, total int, item BatchItem)
}

// BatchItem is the outcome of one source in a batch.
type BatchItem struct {
	Source  string
	Output  string // Markdown path when converted
	Err     error
	Skipped bool // not started because the batch was cancelled
}

// BatchResult holds the outcome of a batch conversion run. Items are in
// source order.
type BatchResult struct {
	Items     []BatchItem
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the number of sources found.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any source failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// CollectSources lists the pdf, doc and docx files in dir, sorted. Hidden
// directories are not descended into.
func CollectSources(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, wrapError(KindInvalidInput, dir, err, "input directory")
	}
	if !info.IsDir() {
		return nil, newError(KindInvalidInput, dir, "not a directory")
	}

	var out []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsSupported(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(KindInvalidInput, dir, err, "scan input directory")
	}
	sort.Strings(out)
	return out, nil
}

// ConvertBatch converts every source found under req.InputDir with a bounded
// worker pool. Cancelling ctx stops queued sources from starting; they are
// reported as skipped. Individual failures do not stop the batch.
func (c *Converter) ConvertBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	sources, err := CollectSources(req.InputDir, req.Recursive)
	if err != nil {
		return BatchResult{}, err
	}
	root := req.OutputRoot
	if root == "" {
		root = req.InputDir
	}
	workers := req.Workers
	if workers <= 0 {
		workers = c.cfg.Workers
	}
	if workers <= 0 {
		workers = 1
	}

	log := c.log.With().Str("input", req.InputDir).Int("files", len(sources)).Int("workers", workers).Logger()
	log.Info().Msg("batch started")

	items := make([]BatchItem, len(sources))
	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if req.Progress != nil {
			req.Progress(done, len(items), items[i])
		}
	}

	// Two sources with the same stem in one directory would share an output
	// folder; the first in sort order wins.
	claimed := make(map[string]string, len(sources))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range sources {
		items[i].Source = src
		outRoot := root
		if req.Recursive {
			if rel, err := filepath.Rel(req.InputDir, filepath.Dir(src)); err == nil && rel != "." {
				outRoot = filepath.Join(root, rel)
			}
		}
		key := filepath.Join(outRoot, SanitizeStem(src))
		if first, ok := claimed[key]; ok {
			items[i].Err = newError(KindOutputWriteFailure, src, "output folder %s already used by %s", key, first)
			finish(i)
			continue
		}
		claimed[key] = src

		if ctx.Err() != nil {
			items[i].Skipped = true
			finish(i)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				items[i].Skipped = true
			} else {
				items[i].Output, items[i].Err = c.Convert(ctx, Request{
					SourcePath:   src,
					OutputRoot:   outRoot,
					InlineImages: req.InlineImages,
				})
			}
			finish(i)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Items: items}
	for _, it := range items {
		switch {
		case it.Skipped:
			res.Skipped++
		case it.Err != nil:
			res.Failed++
		default:
			res.Converted++
		}
	}
	log.Info().Int("converted", res.Converted).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("batch finished")

	if res.Skipped > 0 {
		return res, ctx.Err()
	}
	return res, nil
}
