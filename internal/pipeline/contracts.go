package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
)

// Transcriber converts a lecture recording into a timestamped transcript
// plus a marker-stripped variant.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (timestamped string, stripped string, err error)
}

// Captioner describes one slide image in natural language.
type Captioner interface {
	Caption(ctx context.Context, imageBytes []byte) (string, error)
}

// Generator answers one text prompt with model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into vectors, distinguishing document storage from
// retrieval queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Stage worker surfaces as the orchestrator consumes them.
type STTStage interface {
	Run(ctx context.Context, audioPath string) (*Transcript, float64, error)
}

type PdfParseStage interface {
	Run(ctx context.Context, pdfPath string) ([]models.ParsedPage, float64, error)
}

type SummarizeStage interface {
	Run(ctx context.Context, timestampedScript string) (*models.SummaryDocument, string, float64, error)
}

type EmbedStage interface {
	Run(ctx context.Context, lectureID int64, pages []models.ParsedPage, timestampedScript string) (float64, error)
}

type MapStage interface {
	Run(ctx context.Context, lectureID int64, summary *models.SummaryDocument) ([]models.TopicMapping, float64, error)
}

// LectureStore is the relational-store surface the orchestrator needs. The
// progress writes (UpdateStep, RecordStepTime) must be durable before the
// call returns; that is what makes mid-job progress observable.
type LectureStore interface {
	GetByID(ctx context.Context, id int64) (*models.Lecture, error)
	UpdateStep(ctx context.Context, id int64, step int) error
	RecordStepTime(ctx context.Context, id int64, step int, seconds float64) error
	MarkCompleted(ctx context.Context, id int64, script, summaryJSON string) error
	MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error)
	InsertPageChunks(ctx context.Context, lectureID int64, pages []models.ParsedPage) error
	InsertTopicMappings(ctx context.Context, lectureID int64, mappings []models.TopicMapping) error
}

// StatsStore reads and writes the processing-statistics singleton.
type StatsStore interface {
	GetOrCreate(ctx context.Context) (*models.ProcessingStats, error)
	Save(ctx context.Context, stats *models.ProcessingStats) error
}

// CollectionName returns the vector collection owned by one lecture.
func CollectionName(lectureID int64) string {
	return fmt.Sprintf("lecture_%d", lectureID)
}

// elapsedSince measures wall-clock seconds since start.
func elapsedSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}
