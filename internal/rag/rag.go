package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lecturanote/lecture-processor/internal/pipeline"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

const topK = 5

// NoMatchAnswer is returned when the lecture's collection yields nothing
// for the question.
const NoMatchAnswer = "관련된 강의 내용을 찾지 못했습니다."

const answerPromptFormat = `당신은 강의 내용을 완벽하게 이해한 AI 조교입니다.
다음 '강의 자료'를 바탕으로 사용자의 '질문'에 대해 명확하고 친절하게 답변해 주세요.
반드시 제공된 '강의 자료'에 근거하여 답변해야 합니다.

[강의 자료]
%s
[강의 자료 끝]

[질문]
%s

[답변]
`

// Service answers questions about one processed lecture by retrieving the
// nearest transcript chunks and slide pages from its vector collection and
// grounding a model answer on them.
type Service struct {
	embedder  pipeline.Embedder
	generator pipeline.Generator
	vectors   vectorstore.Store
	log       logger.Logger
}

func NewService(embedder pipeline.Embedder, generator pipeline.Generator, vectors vectorstore.Store, log logger.Logger) *Service {
	return &Service{
		embedder:  embedder,
		generator: generator,
		vectors:   vectors,
		log:       log.Named("rag"),
	}
}

// Answer retrieves the lecture context nearest the question and generates a
// grounded answer, appending the sorted unique source labels.
func (s *Service) Answer(ctx context.Context, lectureID int64, question string) (string, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	matches, err := s.vectors.Query(ctx, pipeline.CollectionName(lectureID), embedding, topK, nil)
	if err != nil {
		return "", fmt.Errorf("query lecture collection: %w", err)
	}
	if len(matches) == 0 {
		return NoMatchAnswer, nil
	}

	var contextBuf strings.Builder
	sources := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		label := sourceLabel(m.Metadata)
		contextBuf.WriteString(label)
		contextBuf.WriteString("\n")
		contextBuf.WriteString(m.Document)
		contextBuf.WriteString("\n\n")
		sources[label] = struct{}{}
	}

	prompt := fmt.Sprintf(answerPromptFormat, contextBuf.String(), question)
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	labels := make([]string, 0, len(sources))
	for label := range sources {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	s.log.Info("question answered",
		logger.Int64("lecture_id", lectureID),
		logger.Int("matches", len(matches)))
	return answer + " (참고: " + strings.Join(labels, ", ") + ")", nil
}

// sourceLabel renders one match's provenance: the slide page for PDF
// documents, the transcript timestamp for script chunks.
func sourceLabel(metadata map[string]interface{}) string {
	if metadata["source"] == "pdf" {
		return fmt.Sprintf("[PDF %dp]", metadataInt(metadata["page"]))
	}
	ts, _ := metadata["timestamp"].(string)
	return fmt.Sprintf("[스크립트 %s]", ts)
}

// metadataInt tolerates the numeric types a JSON metadata payload can
// decode into.
func metadataInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
