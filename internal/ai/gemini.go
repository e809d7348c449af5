package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"

	cfg "github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

const transcribePrompt = `다음은 강의 오디오 파일입니다. 이 파일을 한국어 텍스트로 변환해 주세요.
다음의 요구사항을 반드시 지켜주세요:
1. 한국어 스크립트를 작성해 주세요.
2. 음성 녹음을 빼먹지 말고 변환해 주세요.
3. 각 문장이나 문단 앞에 해당하는 시간을 [MM:SS] 형식으로 표시해 주세요.
4. 예시: [00:15] 안녕하세요. 오늘은 ~~에 대해 배워보겠습니다.
5. 스크립트 외의 다른 답변은 하지 말아주세요.`

var timestampMarker = regexp.MustCompile(`\[\d{2}:\d{2}(\s*-\s*\d{2}:\d{2})?\]\s*`)

// GeminiClient wraps the Gemini API for transcription, summarization and
// embeddings.
type GeminiClient struct {
	client         *genai.Client
	flashModel     string
	embeddingModel string
	timeout        time.Duration
	logger         logger.Logger
}

func NewGeminiClient(ctx context.Context, log logger.Logger) (*GeminiClient, error) {
	conf := cfg.GetGeminiConfig()
	if conf.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		flashModel:     conf.FlashModel,
		embeddingModel: conf.EmbeddingModel,
		timeout:        time.Duration(conf.TimeoutSec) * time.Second,
		logger:         log,
	}, nil
}

// Transcribe uploads the audio file and asks the flash model for a
// timestamped transcript. Returns the timestamped script and a variant
// with the [MM:SS] markers stripped. The uploaded file is deleted again
// whether or not transcription succeeds.
func (g *GeminiClient) Transcribe(ctx context.Context, audioPath string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	file, err := g.client.Files.UploadFromPath(ctx, audioPath, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload audio: %w", err)
	}
	defer func() {
		if _, err := g.client.Files.Delete(context.WithoutCancel(ctx), file.Name, nil); err != nil {
			g.logger.Warn("Failed to delete uploaded audio file",
				logger.String("file", file.Name),
				logger.Error(err),
			)
		}
	}()

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromURI(file.URI, file.MIMEType),
		},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.flashModel, contents, nil)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}

	script := responseText(resp)
	if strings.TrimSpace(script) == "" {
		return "", "", fmt.Errorf("transcription returned empty text")
	}

	stripped := timestampMarker.ReplaceAllString(script, "")
	if strings.TrimSpace(stripped) == "" {
		stripped = script
	}
	return script, stripped, nil
}

// Generate sends a plain text prompt to the flash model and returns its
// text answer. Used by the summarization stage and the Q&A service.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.flashModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}

// EmbedDocuments embeds a batch of texts for storage.
func (g *GeminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return g.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a single retrieval query.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *GeminiClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
		TaskType: taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d texts", embeddingCount(result), len(texts))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func embeddingCount(result *genai.EmbedContentResponse) int {
	if result == nil {
		return 0
	}
	return len(result.Embeddings)
}

// responseText concatenates text parts of the first candidate carrying any.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
