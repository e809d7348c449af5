package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

func TestMapRunLinksTopicsToPages(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.matches = []vectorstore.Match{{
		ID:       "pdf_3_12",
		Document: "slide content",
		Metadata: map[string]interface{}{"source": "pdf", "page": float64(12)},
	}}
	w := NewMapWorker(&fakeEmbedder{}, vectors, logger.NewTestLogger())

	summary := &models.SummaryDocument{SummaryList: []models.SummaryTopic{
		{Topic: "프로세스 스케줄링", Summary: "스케줄러의 역할"},
	}}

	mappings, _, err := w.Run(context.Background(), 3, summary)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(3), mappings[0].LectureID)
	assert.Equal(t, "프로세스 스케줄링", mappings[0].SummaryTopic)
	assert.Equal(t, 12, mappings[0].MappedPage)
	assert.Equal(t, "slide content", mappings[0].MappedContent)
}

func TestMapRunSkipsEmptyTopics(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.matches = []vectorstore.Match{{
		Document: "x",
		Metadata: map[string]interface{}{"page": 1},
	}}
	w := NewMapWorker(&fakeEmbedder{}, vectors, logger.NewTestLogger())

	summary := &models.SummaryDocument{SummaryList: []models.SummaryTopic{
		{Topic: "", Summary: "orphan summary"},
		{Topic: "orphan topic", Summary: ""},
		{Topic: "ok", Summary: "fine"},
	}}

	mappings, _, err := w.Run(context.Background(), 1, summary)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "ok", mappings[0].SummaryTopic)
}

func TestMapRunSkipsTopicOnLookupError(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.queryErr = errors.New("store down")
	w := NewMapWorker(&fakeEmbedder{}, vectors, logger.NewTestLogger())

	summary := &models.SummaryDocument{SummaryList: []models.SummaryTopic{
		{Topic: "a", Summary: "b"},
	}}

	mappings, _, err := w.Run(context.Background(), 1, summary)
	require.NoError(t, err, "per-topic faults must not fail the stage")
	assert.Empty(t, mappings)
}

func TestMetadataPage(t *testing.T) {
	assert.Equal(t, 4, metadataPage(map[string]interface{}{"page": 4}))
	assert.Equal(t, 4, metadataPage(map[string]interface{}{"page": int64(4)}))
	assert.Equal(t, 4, metadataPage(map[string]interface{}{"page": float64(4)}))
	assert.Equal(t, 0, metadataPage(map[string]interface{}{}))
}
