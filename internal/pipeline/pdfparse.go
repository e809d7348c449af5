package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/internal/pdfdoc"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

// PdfParseWorker extracts per-page text and captions embedded images. Pages
// run through a bounded pool so that at most batchSize captioning calls are
// in flight at once; this nests inside the tier-level concurrency, so the
// total external-call ceiling is tier width times batchSize.
type PdfParseWorker struct {
	captioner Captioner
	batchSize int
	logger    logger.Logger
}

func NewPdfParseWorker(captioner Captioner, batchSize int, log logger.Logger) *PdfParseWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &PdfParseWorker{
		captioner: captioner,
		batchSize: batchSize,
		logger:    log,
	}
}

// pageSource is the slice of pdfdoc.Document the worker reads.
type pageSource interface {
	PageCount() int
	PageText(pageNum int) (string, error)
	PageImages(pageNum int) ([][]byte, error)
}

// Run parses the PDF at pdfPath into ordered (page, content) pairs. A page
// with no text and no images yields empty content; producing zero pages is
// a worker failure.
func (w *PdfParseWorker) Run(ctx context.Context, pdfPath string) ([]models.ParsedPage, float64, error) {
	start := time.Now()

	doc, err := pdfdoc.Open(pdfPath)
	if err != nil {
		return nil, elapsedSince(start), fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	return w.parse(ctx, doc, start)
}

func (w *PdfParseWorker) parse(ctx context.Context, doc pageSource, start time.Time) ([]models.ParsedPage, float64, error) {
	numPages := doc.PageCount()
	if numPages == 0 {
		return nil, elapsedSince(start), fmt.Errorf("pdf has no pages")
	}

	g, gctx := errgroup.WithContext(ctx)
	pageChan := make(chan models.ParsedPage, numPages)
	sem := make(chan struct{}, w.batchSize)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			content := w.processPage(gctx, doc, pageNum)

			select {
			case pageChan <- models.ParsedPage{PageNum: pageNum, Content: content}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	go func() {
		g.Wait()
		close(pageChan)
	}()

	pages := make([]models.ParsedPage, 0, numPages)
	for page := range pageChan {
		pages = append(pages, page)
	}
	if err := g.Wait(); err != nil {
		return nil, elapsedSince(start), err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })

	if len(pages) == 0 {
		return nil, elapsedSince(start), fmt.Errorf("no pages produced")
	}
	return pages, elapsedSince(start), nil
}

// processPage builds one page's content. Per-page faults degrade to empty
// sections instead of failing the worker; a caption fault is absorbed into
// the description text so the page survives.
func (w *PdfParseWorker) processPage(ctx context.Context, doc pageSource, pageNum int) string {
	text, err := doc.PageText(pageNum)
	if err != nil {
		w.logger.Warn("Failed to extract page text",
			logger.Int("page", pageNum),
			logger.Error(err),
		)
		text = ""
	}
	text = strings.TrimSpace(text)

	var descriptions []string
	images, err := doc.PageImages(pageNum)
	if err != nil {
		w.logger.Warn("Failed to extract page images",
			logger.Int("page", pageNum),
			logger.Error(err),
		)
	}
	for i, img := range images {
		caption, err := w.captioner.Caption(ctx, img)
		if err != nil {
			w.logger.Warn("Image captioning failed",
				logger.Int("page", pageNum),
				logger.Int("image", i+1),
				logger.Error(err),
			)
			descriptions = append(descriptions, fmt.Sprintf("[Image %d]: Error analyzing image - %s", i+1, err.Error()))
			continue
		}
		caption = strings.TrimSpace(caption)
		if caption != "" {
			descriptions = append(descriptions, fmt.Sprintf("[Image %d]: %s", i+1, caption))
		}
	}

	var sections []string
	if text != "" {
		sections = append(sections, "=== Text Content ===", text)
	}
	if len(descriptions) > 0 {
		if len(sections) > 0 {
			sections = append(sections, "")
		}
		sections = append(sections, "=== Image Descriptions ===")
		sections = append(sections, descriptions...)
	}
	return strings.Join(sections, "\n")
}
