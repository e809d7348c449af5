package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

type stubGenerator struct {
	lastPrompt string
	response   string
	err        error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

type stubVectorStore struct {
	matches  []vectorstore.Match
	queryErr error
}

func (s *stubVectorStore) CreateOrReplace(ctx context.Context, name string) error { return nil }

func (s *stubVectorStore) Add(ctx context.Context, name string, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]interface{}) error {
	return nil
}

func (s *stubVectorStore) Query(ctx context.Context, name string, embedding []float32, k int, where map[string]interface{}) ([]vectorstore.Match, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

func (s *stubVectorStore) Delete(ctx context.Context, name string) error { return nil }

func TestAnswerGroundsOnRetrievedContext(t *testing.T) {
	gen := &stubGenerator{response: "프로세스는 실행 중인 프로그램입니다."}
	vectors := &stubVectorStore{matches: []vectorstore.Match{
		{
			Document: "process definition slide",
			Metadata: map[string]interface{}{"source": "pdf", "page": float64(3)},
		},
		{
			Document: "[12:30] 프로세스 설명",
			Metadata: map[string]interface{}{"source": "script", "timestamp": "[12:30]"},
		},
	}}

	svc := NewService(&stubEmbedder{}, gen, vectors, logger.NewTestLogger())

	answer, err := svc.Answer(context.Background(), 3, "프로세스란 무엇인가요?")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(answer, "프로세스는 실행 중인 프로그램입니다."))
	assert.Contains(t, answer, "(참고: [PDF 3p], [스크립트 [12:30]])")
	assert.Contains(t, gen.lastPrompt, "process definition slide")
	assert.Contains(t, gen.lastPrompt, "프로세스란 무엇인가요?")
}

func TestAnswerDeduplicatesAndSortsSources(t *testing.T) {
	gen := &stubGenerator{response: "answer"}
	vectors := &stubVectorStore{matches: []vectorstore.Match{
		{Document: "b", Metadata: map[string]interface{}{"source": "pdf", "page": 9}},
		{Document: "a", Metadata: map[string]interface{}{"source": "pdf", "page": 2}},
		{Document: "c", Metadata: map[string]interface{}{"source": "pdf", "page": 9}},
	}}

	svc := NewService(&stubEmbedder{}, gen, vectors, logger.NewTestLogger())

	answer, err := svc.Answer(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Contains(t, answer, "(참고: [PDF 2p], [PDF 9p])")
}

func TestAnswerNoMatches(t *testing.T) {
	svc := NewService(&stubEmbedder{}, &stubGenerator{}, &stubVectorStore{}, logger.NewTestLogger())

	answer, err := svc.Answer(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Equal(t, NoMatchAnswer, answer)
}

func TestAnswerPropagatesEmbedFailure(t *testing.T) {
	svc := NewService(&stubEmbedder{err: errors.New("quota exceeded")}, &stubGenerator{}, &stubVectorStore{}, logger.NewTestLogger())

	_, err := svc.Answer(context.Background(), 1, "q")
	assert.Error(t, err)
}
