package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmooth(t *testing.T) {
	// new = w*old + (1-w)*observed
	assert.InDelta(t, 1.5, Smooth(1.0, 2.0, 0.5), 1e-9)
	assert.InDelta(t, 2.0, Smooth(1.0, 2.0, 0.0), 1e-9)
	assert.InDelta(t, 1.0, Smooth(1.0, 2.0, 1.0), 1e-9)
}

func TestSmoothConverges(t *testing.T) {
	value := 10.0
	for i := 0; i < 50; i++ {
		value = Smooth(value, 2.0, 0.5)
	}
	assert.InDelta(t, 2.0, value, 1e-6)
}

func TestDefaultProcessingStats(t *testing.T) {
	stats := DefaultProcessingStats()
	assert.Equal(t, 1.8, stats.SttSecPerMin)
	assert.Equal(t, 1.25, stats.PdfParseSecPerPage)
	assert.Equal(t, 0.08, stats.EmbedSecPerPage)
	assert.Equal(t, 1.8, stats.SummarizeSec)
	assert.Equal(t, 1.4, stats.PdfCombinedSecPerPage)
}
