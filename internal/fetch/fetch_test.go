package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioExt(t *testing.T) {
	assert.Equal(t, ".mp3", audioExt("https://cdn.example.com/rec/lecture.mp3", ""))
	assert.Equal(t, ".wav", audioExt("https://cdn.example.com/rec/lecture.wav?token=abc", ""))
	assert.Equal(t, ".mp3", audioExt("https://cdn.example.com/stream", "audio/nonstandard"))
}
