package converter

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// pdfSplitter counts pages and writes page ranges of a PDF to new files.
type pdfSplitter interface {
	PageCount(path string) (int, error)
	Extract(src, dst string, from, to int) error
}

// pdfcpuSplitter splits with github.com/pdfcpu/pdfcpu.
type pdfcpuSplitter struct{}

func (pdfcpuSplitter) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return n, nil
}

// Extract writes pages from..to (1-based, inclusive) of src to dst.
func (pdfcpuSplitter) Extract(src, dst string, from, to int) error {
	sel := []string{fmt.Sprintf("%d-%d", from, to)}
	if err := api.TrimFile(src, dst, sel, nil); err != nil {
		return fmt.Errorf("extract pages %d-%d: %w", from, to, err)
	}
	return nil
}
