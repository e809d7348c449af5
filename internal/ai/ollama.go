package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfg "github.com/lecturanote/lecture-processor/config"
)

// CaptionPrompt is the instruction sent with every slide image.
const CaptionPrompt = `Describe this image in detail in English.
Include all visible text, diagrams, charts, formulas, and visual elements.
If there are any labels, captions, or annotations, include them in your description.
Be thorough and accurate in describing what you see.`

type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Images  []string               `json:"images"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient calls a local Ollama server running a vision model to
// caption slide images.
type OllamaClient struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewOllamaClient() *OllamaClient {
	conf := cfg.GetOllamaConfig()
	return &OllamaClient{
		endpoint:    conf.Endpoint,
		model:       conf.Model,
		temperature: conf.Temperature,
		httpClient: &http.Client{
			Timeout: time.Duration(conf.TimeoutSec) * time.Second,
		},
	}
}

// Caption describes one image. The raw bytes come straight from the PDF's
// embedded image objects.
func (c *OllamaClient) Caption(ctx context.Context, imageBytes []byte) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: CaptionPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageBytes)},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": c.temperature,
		},
	}

	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}

	return result.Response, nil
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
