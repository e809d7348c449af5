package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transcript is the STT stage payload.
type Transcript struct {
	Timestamped string // with inline [MM:SS] markers
	Stripped    string // markers removed, for summary model input
}

// STTWorker wraps the transcription capability.
type STTWorker struct {
	transcriber Transcriber
}

func NewSTTWorker(transcriber Transcriber) *STTWorker {
	return &STTWorker{transcriber: transcriber}
}

// Run transcribes the audio file at audioPath, measuring the call.
func (w *STTWorker) Run(ctx context.Context, audioPath string) (*Transcript, float64, error) {
	start := time.Now()

	timestamped, stripped, err := w.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, elapsedSince(start), fmt.Errorf("transcription failed: %w", err)
	}
	if strings.TrimSpace(timestamped) == "" || strings.TrimSpace(stripped) == "" {
		return nil, elapsedSince(start), fmt.Errorf("transcription returned an empty script")
	}

	return &Transcript{Timestamped: timestamped, Stripped: stripped}, elapsedSince(start), nil
}
