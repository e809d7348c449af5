package config

import (
	"sync"
)

var (
	pipelineOnce   sync.Once
	pipelineConfig *PipelineConfig
)

// PipelineConfig collects the processing tunables. Concurrency values are
// deliberate ceilings: total simultaneous external calls is bounded by
// tier width times PdfParseBatchSize.
type PipelineConfig struct {
	// PdfParseBatchSize bounds concurrent page-captioning calls inside the
	// PdfParse stage.
	PdfParseBatchSize int
	// ScriptChunkLines is the transcript window size for embedding.
	ScriptChunkLines int
	// EmbedBatchSize bounds how many documents go into one embedding call.
	EmbedBatchSize int
	// SmoothingWeight is the EMA weight given to the previous average.
	SmoothingWeight float64
	// SaveOverheadSec is the fixed persist-step allowance in the ETA.
	SaveOverheadSec float64
	// StuckThresholdMin is the reaper age threshold in minutes.
	StuckThresholdMin int
	// WorkerConcurrency is the asynq worker pool size across lectures.
	WorkerConcurrency int
	// ProcessTimeoutMin bounds one full pipeline run.
	ProcessTimeoutMin int
	// ArtifactRetentionDays is how long uploaded artifacts stay in object
	// storage. Zero disables the retention sweep.
	ArtifactRetentionDays int
}

func GetPipelineConfig() *PipelineConfig {
	pipelineOnce.Do(func() {
		loadEnv()

		pipelineConfig = &PipelineConfig{
			PdfParseBatchSize: getEnvInt("PDF_PARSE_BATCH_SIZE", 4),
			ScriptChunkLines:  getEnvInt("SCRIPT_CHUNK_LINES", 10),
			EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 100),
			SmoothingWeight:   getEnvFloat("STATS_SMOOTHING_WEIGHT", 0.5),
			SaveOverheadSec:   getEnvFloat("ETA_SAVE_OVERHEAD_SEC", 5),
			StuckThresholdMin: getEnvInt("STUCK_THRESHOLD_MIN", 15),
			WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
			ProcessTimeoutMin: getEnvInt("PROCESS_TIMEOUT_MIN", 60),

			ArtifactRetentionDays: getEnvInt("ARTIFACT_RETENTION_DAYS", 30),
		}
	})
	return pipelineConfig
}
