package config

import (
	"sync"
)

var (
	geminiOnce   sync.Once
	geminiConfig *GeminiConfig
)

// GeminiConfig holds credentials and model names for the Gemini API, used
// for transcription, summarization and embeddings.
type GeminiConfig struct {
	APIKey         string
	FlashModel     string
	EmbeddingModel string
	TimeoutSec     int
}

func GetGeminiConfig() *GeminiConfig {
	geminiOnce.Do(func() {
		loadEnv()

		geminiConfig = &GeminiConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			FlashModel:     getEnv("GEMINI_MODEL_FLASH", "gemini-2.0-flash"),
			EmbeddingModel: getEnv("GEMINI_MODEL_EMBEDDING", "gemini-embedding-001"),
			TimeoutSec:     getEnvInt("GEMINI_TIMEOUT_SEC", 600),
		}
	})
	return geminiConfig
}

var (
	ollamaOnce   sync.Once
	ollamaConfig *OllamaConfig
)

// OllamaConfig holds the local vision model settings used for slide image
// captioning.
type OllamaConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	TimeoutSec  int
}

func GetOllamaConfig() *OllamaConfig {
	ollamaOnce.Do(func() {
		loadEnv()

		ollamaConfig = &OllamaConfig{
			Endpoint:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:       getEnv("OLLAMA_MODEL", "bakllava"),
			Temperature: getEnvFloat("OLLAMA_TEMPERATURE", 0.1),
			TimeoutSec:  getEnvInt("OLLAMA_TIMEOUT_SEC", 120),
		}
	})
	return ollamaConfig
}

var (
	chromaOnce   sync.Once
	chromaConfig *ChromaConfig
)

// ChromaConfig points at the vector store REST endpoint.
type ChromaConfig struct {
	Endpoint   string
	Tenant     string
	Database   string
	TimeoutSec int
}

func GetChromaConfig() *ChromaConfig {
	chromaOnce.Do(func() {
		loadEnv()

		chromaConfig = &ChromaConfig{
			Endpoint:   getEnv("CHROMA_ENDPOINT", "http://localhost:8000"),
			Tenant:     getEnv("CHROMA_TENANT", "default_tenant"),
			Database:   getEnv("CHROMA_DATABASE", "default_database"),
			TimeoutSec: getEnvInt("CHROMA_TIMEOUT_SEC", 60),
		}
	})
	return chromaConfig
}
