package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lecturanote/lecture-processor/internal/models"
)

func TestETAWithDefaultRates(t *testing.T) {
	stats := models.DefaultProcessingStats()

	// 10 minutes of audio, 20 pages:
	//   tier 1: max(10*1.8, 20*1.25)        = 25
	//   tier 2: max(1.8, 20*0.08)           = 1.8
	//   residual: 20*(1.4 - 1.25 - 0.08)    = 1.4
	//   overhead:                             5
	eta := ETA(&stats, 10, 20, 5)
	assert.InDelta(t, 33.2, eta, 1e-9)
}

func TestETASTTDominatedTier(t *testing.T) {
	stats := models.DefaultProcessingStats()

	// 60 minutes of audio but only 4 pages: transcription dominates.
	eta := ETA(&stats, 60, 4, 5)
	tier1 := 60 * stats.SttSecPerMin
	residual := 4 * (stats.PdfCombinedSecPerPage - stats.PdfParseSecPerPage - stats.EmbedSecPerPage)
	assert.InDelta(t, tier1+stats.SummarizeSec+residual+5, eta, 1e-9)
}

func TestETAZeroInputsIsOverheadPlusSummarize(t *testing.T) {
	stats := models.DefaultProcessingStats()
	eta := ETA(&stats, 0, 0, 5)
	assert.InDelta(t, stats.SummarizeSec+5, eta, 1e-9)
}

func TestETANegativeResidualClampsToZero(t *testing.T) {
	stats := models.DefaultProcessingStats()
	stats.PdfCombinedSecPerPage = 0.5 // below parse+embed

	// tier 1 = 10*1.25, tier 2 = max(1.8, 0.8), residual clamped to 0
	eta := ETA(&stats, 0, 10, 0)
	assert.InDelta(t, 10*stats.PdfParseSecPerPage+stats.SummarizeSec, eta, 1e-9)
}

func TestETAMonotonicInInputs(t *testing.T) {
	stats := models.DefaultProcessingStats()

	assert.LessOrEqual(t, ETA(&stats, 10, 10, 5), ETA(&stats, 20, 10, 5))
	assert.LessOrEqual(t, ETA(&stats, 10, 10, 5), ETA(&stats, 10, 30, 5))
}
