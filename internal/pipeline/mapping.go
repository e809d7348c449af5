package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

// MapWorker links each summary topic to its best-matching PDF page by
// querying the lecture's vector collection.
type MapWorker struct {
	embedder Embedder
	vectors  vectorstore.Store
	logger   logger.Logger
}

func NewMapWorker(embedder Embedder, vectors vectorstore.Store, log logger.Logger) *MapWorker {
	return &MapWorker{
		embedder: embedder,
		vectors:  vectors,
		logger:   log,
	}
}

// Run maps every usable topic to a page. Topics without query text are
// skipped; a per-topic embedding or lookup fault is logged and skipped so
// the remaining topics still map.
func (w *MapWorker) Run(ctx context.Context, lectureID int64, summary *models.SummaryDocument) ([]models.TopicMapping, float64, error) {
	start := time.Now()

	name := CollectionName(lectureID)
	mappings := make([]models.TopicMapping, 0, len(summary.SummaryList))

	for _, item := range summary.SummaryList {
		if item.Topic == "" || item.Summary == "" {
			continue
		}

		queryText := fmt.Sprintf("주제: %s\n요약: %s", item.Topic, item.Summary)
		embedding, err := w.embedder.EmbedQuery(ctx, queryText)
		if err != nil {
			w.logger.Error("Failed to embed mapping query",
				logger.Int64("lectureId", lectureID),
				logger.String("topic", item.Topic),
				logger.Error(err),
			)
			continue
		}

		matches, err := w.vectors.Query(ctx, name, embedding, 1, map[string]interface{}{"source": "pdf"})
		if err != nil {
			w.logger.Error("Mapping lookup failed",
				logger.Int64("lectureId", lectureID),
				logger.String("topic", item.Topic),
				logger.Error(err),
			)
			continue
		}
		if len(matches) == 0 {
			continue
		}

		best := matches[0]
		mappings = append(mappings, models.TopicMapping{
			LectureID:     lectureID,
			SummaryTopic:  item.Topic,
			MappedPage:    metadataPage(best.Metadata),
			MappedContent: best.Document,
		})
	}

	return mappings, elapsedSince(start), nil
}

// metadataPage reads the page number out of match metadata; JSON decoding
// hands integers back as float64.
func metadataPage(metadata map[string]interface{}) int {
	switch v := metadata["page"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
