package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/internal/estimate"
	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/internal/pdfdoc"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/storage"
)

// Orchestrator drives one lecture through the full pipeline: the parallel
// STT/PdfParse tier, the parallel Summarize/Embed tier, sequential topic
// mapping, and the terminal persist step. Stage elapsed times are written
// to the lecture row the moment each stage finishes.
type Orchestrator struct {
	lectures LectureStore
	stats    StatsStore
	store    storage.Storage

	stt       STTStage
	pdfParse  PdfParseStage
	summarize SummarizeStage
	embed     EmbedStage
	mapper    MapStage

	cfg config.PipelineConfig
	log logger.Logger
}

func NewOrchestrator(
	lectures LectureStore,
	stats StatsStore,
	store storage.Storage,
	stt STTStage,
	pdfParse PdfParseStage,
	summarize SummarizeStage,
	embed EmbedStage,
	mapper MapStage,
	cfg config.PipelineConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		lectures:  lectures,
		stats:     stats,
		store:     store,
		stt:       stt,
		pdfParse:  pdfParse,
		summarize: summarize,
		embed:     embed,
		mapper:    mapper,
		cfg:       cfg,
		log:       log.Named("orchestrator"),
	}
}

// Process runs the whole pipeline for one lecture. Any stage failure marks
// the lecture failed and returns an error; a lecture no longer in the
// processing state is skipped without error so duplicate deliveries and
// reaped jobs are harmless.
func (o *Orchestrator) Process(ctx context.Context, lectureID int64) error {
	log := o.log.With(logger.Int64("lecture_id", lectureID))

	lec, err := o.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return fmt.Errorf("load lecture %d: %w", lectureID, err)
	}
	if lec.Status != models.StatusProcessing {
		log.Info("lecture not in processing state, skipping",
			logger.String("status", string(lec.Status)))
		return nil
	}
	if lec.AudioObject == "" {
		return o.fail(ctx, lectureID, log, "preflight",
			fmt.Errorf("lecture has no audio object"))
	}

	audioPath, err := o.store.FetchToFile(ctx, lec.AudioObject)
	if err != nil {
		return o.fail(ctx, lectureID, log, "preflight",
			fmt.Errorf("fetch audio: %w", err))
	}
	defer os.Remove(audioPath)

	pdfPath, err := o.store.FetchToFile(ctx, lec.PDFObject)
	if err != nil {
		return o.fail(ctx, lectureID, log, "preflight",
			fmt.Errorf("fetch pdf: %w", err))
	}
	defer os.Remove(pdfPath)

	// Input sizes feed the statistics update after completion. A failed
	// probe just means this run contributes nothing to that rate.
	audioMinutes := o.probeAudioMinutes(ctx, audioPath, log)
	pageCount := o.probePageCount(pdfPath, log)

	record := func(step int, elapsed float64) {
		if err := o.lectures.RecordStepTime(ctx, lectureID, step, elapsed); err != nil {
			log.Warn("step time write failed",
				logger.Int("step", step),
				logger.Error(err))
		}
	}

	// Tier 1: transcription and slide parsing run side by side.
	var transcript *Transcript
	var pages []models.ParsedPage

	if err := o.lectures.UpdateStep(ctx, lectureID, models.StepSTT); err != nil {
		log.Warn("step update failed", logger.Error(err))
	}
	tier1, err := RunTier(ctx, []Stage{
		{
			Step: models.StepSTT,
			Name: "stt",
			Run: func(ctx context.Context) (float64, error) {
				t, elapsed, err := o.stt.Run(ctx, audioPath)
				transcript = t
				return elapsed, err
			},
		},
		{
			Step: models.StepPdfParse,
			Name: "pdf_parse",
			Run: func(ctx context.Context) (float64, error) {
				p, elapsed, err := o.pdfParse.Run(ctx, pdfPath)
				pages = p
				return elapsed, err
			},
		},
	}, record)
	if err != nil {
		return o.fail(ctx, lectureID, log, "tier1", err)
	}

	// Tier 2: both consumers of the tier 1 outputs run side by side.
	var (
		summary     *models.SummaryDocument
		summaryJSON string
	)

	if err := o.lectures.UpdateStep(ctx, lectureID, models.StepSummarize); err != nil {
		log.Warn("step update failed", logger.Error(err))
	}
	tier2, err := RunTier(ctx, []Stage{
		{
			Step: models.StepSummarize,
			Name: "summarize",
			Run: func(ctx context.Context) (float64, error) {
				doc, raw, elapsed, err := o.summarize.Run(ctx, transcript.Timestamped)
				summary = doc
				summaryJSON = raw
				return elapsed, err
			},
		},
		{
			Step: models.StepEmbed,
			Name: "embed",
			Run: func(ctx context.Context) (float64, error) {
				return o.embed.Run(ctx, lectureID, pages, transcript.Timestamped)
			},
		},
	}, record)
	if err != nil {
		return o.fail(ctx, lectureID, log, "tier2", err)
	}

	// Mapping needs both the summary topics and the populated collection.
	if err := o.lectures.UpdateStep(ctx, lectureID, models.StepMapping); err != nil {
		log.Warn("step update failed", logger.Error(err))
	}
	mappings, mapElapsed, err := o.mapper.Run(ctx, lectureID, summary)
	if err != nil {
		return o.fail(ctx, lectureID, log, "mapping", err)
	}
	record(models.StepMapping, mapElapsed)

	// Persist: relational rows plus the terminal status flip.
	if err := o.lectures.UpdateStep(ctx, lectureID, models.StepPersist); err != nil {
		log.Warn("step update failed", logger.Error(err))
	}
	persistStart := time.Now()
	if err := o.lectures.InsertPageChunks(ctx, lectureID, pages); err != nil {
		return o.fail(ctx, lectureID, log, "persist", fmt.Errorf("insert page chunks: %w", err))
	}
	if err := o.lectures.InsertTopicMappings(ctx, lectureID, mappings); err != nil {
		return o.fail(ctx, lectureID, log, "persist", fmt.Errorf("insert topic mappings: %w", err))
	}
	if err := o.lectures.MarkCompleted(ctx, lectureID, transcript.Timestamped, summaryJSON); err != nil {
		return o.fail(ctx, lectureID, log, "persist", fmt.Errorf("mark completed: %w", err))
	}
	record(models.StepPersist, elapsedSince(persistStart))

	o.updateStats(ctx, log, audioMinutes, pageCount, tier1, tier2, mapElapsed)

	log.Info("lecture pipeline completed",
		logger.Int("pages", pageCount),
		logger.Float64("audio_minutes", audioMinutes),
		logger.Int("topics", len(mappings)))
	return nil
}

// fail flips the lecture to failed unless a reaper got there first, then
// surfaces the stage error to the task handler.
func (o *Orchestrator) fail(ctx context.Context, lectureID int64, log logger.Logger, stage string, cause error) error {
	flipped, err := o.lectures.MarkFailedIfProcessing(ctx, lectureID)
	if err != nil {
		log.Error("failure mark failed",
			logger.String("stage", stage),
			logger.Error(err))
	} else if !flipped {
		log.Warn("lecture already terminal, failure mark skipped",
			logger.String("stage", stage))
	}
	return fmt.Errorf("%s: %w", stage, cause)
}

func (o *Orchestrator) probeAudioMinutes(ctx context.Context, path string, log logger.Logger) float64 {
	sec, err := estimate.AudioDuration(ctx, path)
	if err != nil {
		log.Warn("audio duration probe failed", logger.Error(err))
		return 0
	}
	return sec / 60
}

func (o *Orchestrator) probePageCount(path string, log logger.Logger) int {
	n, err := pdfdoc.PageCount(path)
	if err != nil {
		log.Warn("page count probe failed", logger.Error(err))
		return 0
	}
	return n
}

// updateStats folds this run's observed per-unit rates into the shared
// averages. Statistics are advisory; every error here is logged and
// swallowed so a completed lecture is never failed retroactively.
func (o *Orchestrator) updateStats(
	ctx context.Context,
	log logger.Logger,
	audioMinutes float64,
	pageCount int,
	tier1, tier2 map[int]StageOutcome,
	mapElapsed float64,
) {
	stats, err := o.stats.GetOrCreate(ctx)
	if err != nil {
		log.Warn("stats read failed", logger.Error(err))
		return
	}

	w := o.cfg.SmoothingWeight
	pages := float64(pageCount)

	sttElapsed := tier1[models.StepSTT].Elapsed
	parseElapsed := tier1[models.StepPdfParse].Elapsed
	summarizeElapsed := tier2[models.StepSummarize].Elapsed
	embedElapsed := tier2[models.StepEmbed].Elapsed

	if audioMinutes > 0 {
		stats.SttSecPerMin = models.Smooth(stats.SttSecPerMin, sttElapsed/audioMinutes, w)
	}
	if pages > 0 {
		stats.PdfParseSecPerPage = models.Smooth(stats.PdfParseSecPerPage, parseElapsed/pages, w)
		stats.EmbedSecPerPage = models.Smooth(stats.EmbedSecPerPage, embedElapsed/pages, w)
		stats.PdfCombinedSecPerPage = models.Smooth(stats.PdfCombinedSecPerPage,
			(parseElapsed+embedElapsed+mapElapsed)/pages, w)
	}
	stats.SummarizeSec = models.Smooth(stats.SummarizeSec, summarizeElapsed, w)
	stats.UpdatedAt = time.Now()

	if err := o.stats.Save(ctx, stats); err != nil {
		log.Warn("stats save failed", logger.Error(err))
	}
}
