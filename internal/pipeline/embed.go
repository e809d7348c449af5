package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

// EmbedWorker populates the lecture's vector collection from the parsed
// pages and the transcript. The collection is recreated from scratch every
// run, which makes re-running a failed lecture idempotent with respect to
// the vector store.
type EmbedWorker struct {
	embedder   Embedder
	vectors    vectorstore.Store
	chunkLines int
	batchSize  int
	logger     logger.Logger
}

func NewEmbedWorker(embedder Embedder, vectors vectorstore.Store, chunkLines, batchSize int, log logger.Logger) *EmbedWorker {
	if chunkLines < 1 {
		chunkLines = 10
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &EmbedWorker{
		embedder:   embedder,
		vectors:    vectors,
		chunkLines: chunkLines,
		batchSize:  batchSize,
		logger:     log,
	}
}

type embedDoc struct {
	id       string
	text     string
	metadata map[string]interface{}
}

// Run rebuilds the lecture's collection and stores embeddings for every
// page chunk and transcript window. A failed batch is logged and skipped
// rather than failing the worker; large jobs degrade instead of dying.
func (w *EmbedWorker) Run(ctx context.Context, lectureID int64, pages []models.ParsedPage, timestampedScript string) (float64, error) {
	start := time.Now()

	name := CollectionName(lectureID)
	if err := w.vectors.CreateOrReplace(ctx, name); err != nil {
		return elapsedSince(start), fmt.Errorf("failed to recreate collection: %w", err)
	}

	docs := w.buildDocuments(lectureID, pages, timestampedScript)

	for batchStart := 0; batchStart < len(docs); batchStart += w.batchSize {
		batchEnd := batchStart + w.batchSize
		if batchEnd > len(docs) {
			batchEnd = len(docs)
		}
		batch := docs[batchStart:batchEnd]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		metadatas := make([]map[string]interface{}, len(batch))
		for i, d := range batch {
			texts[i] = d.text
			ids[i] = d.id
			metadatas[i] = d.metadata
		}

		embeddings, err := w.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			w.logger.Error("Embedding batch failed, skipping",
				logger.Int64("lectureId", lectureID),
				logger.Int("batchStart", batchStart),
				logger.Int("batchSize", len(batch)),
				logger.Error(err),
			)
			continue
		}

		if err := w.vectors.Add(ctx, name, ids, embeddings, texts, metadatas); err != nil {
			w.logger.Error("Vector store add failed, skipping batch",
				logger.Int64("lectureId", lectureID),
				logger.Int("batchStart", batchStart),
				logger.Error(err),
			)
		}
	}

	return elapsedSince(start), nil
}

func (w *EmbedWorker) buildDocuments(lectureID int64, pages []models.ParsedPage, script string) []embedDoc {
	var docs []embedDoc

	for _, page := range pages {
		docs = append(docs, embedDoc{
			id:   fmt.Sprintf("pdf_%d_%d", lectureID, page.PageNum),
			text: page.Content,
			metadata: map[string]interface{}{
				"source":     "pdf",
				"page":       page.PageNum,
				"lecture_id": lectureID,
			},
		})
	}

	for _, chunk := range ChunkScript(script, w.chunkLines) {
		docs = append(docs, embedDoc{
			id:   fmt.Sprintf("script_%d_%d", lectureID, chunk.StartLine),
			text: chunk.Text,
			metadata: map[string]interface{}{
				"source":     "script",
				"timestamp":  chunk.Timestamp,
				"lecture_id": lectureID,
			},
		})
	}

	return docs
}

// ScriptChunk is one transcript window prepared for embedding.
type ScriptChunk struct {
	StartLine int
	Timestamp string
	Text      string
}

// ChunkScript splits the timestamped transcript into fixed-size line
// windows, each tagged with its leading timestamp. Windows that are all
// whitespace are dropped.
func ChunkScript(script string, lines int) []ScriptChunk {
	if lines < 1 {
		lines = 1
	}
	scriptLines := strings.Split(script, "\n")

	var chunks []ScriptChunk
	for i := 0; i < len(scriptLines); i += lines {
		end := i + lines
		if end > len(scriptLines) {
			end = len(scriptLines)
		}
		text := strings.Join(scriptLines[i:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, ScriptChunk{
			StartLine: i,
			Timestamp: leadingTimestamp(scriptLines[i]),
			Text:      text,
		})
	}
	return chunks
}

// leadingTimestamp pulls the [MM:SS] marker off the front of a transcript
// line, defaulting to [00:00] when the line carries none.
func leadingTimestamp(line string) string {
	if strings.HasPrefix(line, "[") {
		if idx := strings.Index(line, "]"); idx > 0 {
			return line[:idx+1]
		}
	}
	return "[00:00]"
}
