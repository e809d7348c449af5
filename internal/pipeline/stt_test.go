package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscriber struct {
	timestamped string
	stripped    string
	err         error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (string, string, error) {
	return s.timestamped, s.stripped, s.err
}

func TestSTTRun(t *testing.T) {
	w := NewSTTWorker(&stubTranscriber{
		timestamped: "[00:00] 안녕하세요",
		stripped:    "안녕하세요",
	})

	transcript, elapsed, err := w.Run(context.Background(), "/tmp/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, "[00:00] 안녕하세요", transcript.Timestamped)
	assert.Equal(t, "안녕하세요", transcript.Stripped)
	assert.GreaterOrEqual(t, elapsed, 0.0)
}

func TestSTTRunRejectsEmptyScript(t *testing.T) {
	w := NewSTTWorker(&stubTranscriber{timestamped: "   ", stripped: ""})
	_, _, err := w.Run(context.Background(), "/tmp/audio.mp3")
	assert.Error(t, err)
}

func TestSTTRunPropagatesError(t *testing.T) {
	w := NewSTTWorker(&stubTranscriber{err: errors.New("upload rejected")})
	_, _, err := w.Run(context.Background(), "/tmp/audio.mp3")
	assert.Error(t, err)
}
