package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
)

const summarizePromptFormat = `다음은 대학 강의 스크립트입니다. 이 스크립트의 전체 내용을 파악한 뒤,
'소주제(sub-topic)' 단위로 명확하게 나누어 주세요.

각 소주제에 대해 다음 정보를 포함하는 JSON 형식으로 출력해 주세요:
1. 'topic': 소주제의 핵심 제목
2. 'summary': 해당 소주제의 내용을 2-3문장으로 요약
3. 'original_segment': 해당 소주제가 시작되는 원본 스크립트의 핵심 문장
4. 'timestamp': 해당 소주제가 시작되는 시간 ([MM:SS] 형식의 타임스탬프)

[강의 스크립트 시작]
%s
[강의 스크립트 끝]

JSON 형식 예시:
{
  "summary_list": [
    {
      "topic": "소주제 제목 1",
      "summary": "소주제 1의 요약 내용입니다.",
      "original_segment": "원본 스크립트의 핵심 문장...",
      "timestamp": "[05:30]"
    }
  ]
}

반드시 유효한 JSON 객체만 응답해 주세요.`

// SummarizeWorker turns the timestamped transcript into the structured
// topic summary document.
type SummarizeWorker struct {
	generator Generator
}

func NewSummarizeWorker(generator Generator) *SummarizeWorker {
	return &SummarizeWorker{generator: generator}
}

// Run summarizes the timestamped transcript. Returns the parsed document
// and its canonical JSON encoding for persistence. Unparseable or empty
// model output is a worker failure.
func (w *SummarizeWorker) Run(ctx context.Context, timestampedScript string) (*models.SummaryDocument, string, float64, error) {
	start := time.Now()

	prompt := fmt.Sprintf(summarizePromptFormat, timestampedScript)
	raw, err := w.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, "", elapsedSince(start), fmt.Errorf("summary generation failed: %w", err)
	}

	doc, err := ParseSummary(raw)
	if err != nil {
		return nil, "", elapsedSince(start), err
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", elapsedSince(start), fmt.Errorf("failed to encode summary: %w", err)
	}
	return doc, string(encoded), elapsedSince(start), nil
}

// ParseSummary decodes model output into a summary document, tolerating
// markdown code fences around the JSON.
func ParseSummary(raw string) (*models.SummaryDocument, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var doc models.SummaryDocument
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("summary output is not valid JSON: %w", err)
	}
	if len(doc.SummaryList) == 0 {
		return nil, fmt.Errorf("summary contains no topics")
	}
	return &doc, nil
}
