package estimate

import (
	"context"
	"os"

	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/internal/pdfdoc"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/storage"
)

// LectureStore is the subset of the lecture repository the estimator needs.
type LectureStore interface {
	GetByID(ctx context.Context, id int64) (*models.Lecture, error)
	SetEstimate(ctx context.Context, id int64, seconds float64) error
}

// StatsStore reads the shared processing statistics. The estimator never
// writes them; only completed pipeline runs feed the averages.
type StatsStore interface {
	GetOrCreate(ctx context.Context) (*models.ProcessingStats, error)
}

// Estimator computes expected processing time for a lecture from its
// artifacts and the historical per-unit stage rates.
type Estimator struct {
	lectures LectureStore
	stats    StatsStore
	store    storage.Storage
	cfg      config.PipelineConfig
	log      logger.Logger
}

func NewEstimator(lectures LectureStore, stats StatsStore, store storage.Storage, cfg config.PipelineConfig, log logger.Logger) *Estimator {
	return &Estimator{
		lectures: lectures,
		stats:    stats,
		store:    store,
		cfg:      cfg,
		log:      log.Named("estimate"),
	}
}

// ETA models the pipeline shape: the two parallel tiers each cost their
// slower branch, mapping and persistence cost whatever the combined rate
// attributes beyond parsing and embedding, plus a flat save overhead.
func ETA(stats *models.ProcessingStats, audioMinutes float64, pageCount int, saveOverheadSec float64) float64 {
	pages := float64(pageCount)

	tier1 := audioMinutes * stats.SttSecPerMin
	if parse := pages * stats.PdfParseSecPerPage; parse > tier1 {
		tier1 = parse
	}

	tier2 := stats.SummarizeSec
	if embed := pages * stats.EmbedSecPerPage; embed > tier2 {
		tier2 = embed
	}

	residualRate := stats.PdfCombinedSecPerPage - stats.PdfParseSecPerPage - stats.EmbedSecPerPage
	if residualRate < 0 {
		residualRate = 0
	}

	return tier1 + tier2 + pages*residualRate + saveOverheadSec
}

// AudioMinutes probes the audio duration, tolerating failure. Unknown
// duration contributes zero to the estimate rather than blocking it.
func (e *Estimator) AudioMinutes(ctx context.Context, path string) float64 {
	sec, err := AudioDuration(ctx, path)
	if err != nil {
		e.log.Warn("audio duration probe failed, assuming zero",
			logger.String("path", path),
			logger.Error(err))
		return 0
	}
	return sec / 60
}

// PageCount probes the slide deck's page count, tolerating failure.
func (e *Estimator) PageCount(path string) int {
	n, err := pdfdoc.PageCount(path)
	if err != nil {
		e.log.Warn("pdf page count probe failed, assuming zero",
			logger.String("path", path),
			logger.Error(err))
		return 0
	}
	return n
}

// Estimate downloads the lecture's artifacts, probes them, computes the
// expected duration, and stores it on the lecture row.
func (e *Estimator) Estimate(ctx context.Context, lectureID int64) error {
	lec, err := e.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return err
	}

	var audioMinutes float64
	if lec.AudioObject != "" {
		audioPath, err := e.store.FetchToFile(ctx, lec.AudioObject)
		if err != nil {
			e.log.Warn("audio fetch failed during estimate",
				logger.Int64("lecture_id", lectureID),
				logger.Error(err))
		} else {
			audioMinutes = e.AudioMinutes(ctx, audioPath)
			os.Remove(audioPath)
		}
	}

	var pageCount int
	if lec.PDFObject != "" {
		pdfPath, err := e.store.FetchToFile(ctx, lec.PDFObject)
		if err != nil {
			e.log.Warn("pdf fetch failed during estimate",
				logger.Int64("lecture_id", lectureID),
				logger.Error(err))
		} else {
			pageCount = e.PageCount(pdfPath)
			os.Remove(pdfPath)
		}
	}

	stats, err := e.stats.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	eta := ETA(stats, audioMinutes, pageCount, e.cfg.SaveOverheadSec)
	if err := e.lectures.SetEstimate(ctx, lectureID, eta); err != nil {
		return err
	}

	e.log.Info("estimate recorded",
		logger.Int64("lecture_id", lectureID),
		logger.Float64("audio_minutes", audioMinutes),
		logger.Int("pages", pageCount),
		logger.Float64("eta_sec", eta))
	return nil
}
