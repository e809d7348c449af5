package pdfdoc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Document gives page-level access to a slide PDF: plain text through the
// pdf reader, embedded images through pdfcpu extraction.
type Document struct {
	path      string
	file      *os.File
	reader    *pdf.Reader
	pageCount int
	conf      *model.Configuration
	tempDir   string
}

// Open opens the PDF at path for page-level access.
func Open(path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "pdfdoc-")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &Document{
		path:      path,
		file:      f,
		reader:    reader,
		pageCount: reader.NumPage(),
		conf:      model.NewDefaultConfiguration(),
		tempDir:   tempDir,
	}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pageCount
}

// PageText extracts the plain text of a 1-based page. A page with no text
// yields an empty string.
func (d *Document) PageText(pageNum int) (string, error) {
	if pageNum < 1 || pageNum > d.pageCount {
		return "", fmt.Errorf("page %d out of range 1..%d", pageNum, d.pageCount)
	}
	page := d.reader.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
	}
	return text, nil
}

// PageImages extracts the raw bytes of every image embedded in a 1-based
// page, in a stable order. Pages without images yield an empty slice.
func (d *Document) PageImages(pageNum int) ([][]byte, error) {
	if pageNum < 1 || pageNum > d.pageCount {
		return nil, fmt.Errorf("page %d out of range 1..%d", pageNum, d.pageCount)
	}

	outDir := filepath.Join(d.tempDir, "page_"+strconv.Itoa(pageNum))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	selected := []string{strconv.Itoa(pageNum)}
	if err := api.ExtractImagesFile(d.path, outDir, selected, d.conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from page %d: %w", pageNum, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read extracted image %s: %w", name, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// Close releases the underlying file and scratch space.
func (d *Document) Close() error {
	os.RemoveAll(d.tempDir)
	return d.file.Close()
}

// PageCount reads only the page count of the PDF at path, without parsing
// page content. Used by the duration estimator.
func PageCount(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf context: %w", err)
	}
	return ctx.PageCount, nil
}
