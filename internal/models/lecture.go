package models

import (
	"time"
)

// Status tracks a lecture's processing lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Pipeline step indices. A step's elapsed time is recorded in
// Lecture.StepTimes under its index as the stage finishes, so a polling
// client sees partial progress mid-job.
const (
	StepCreated    = 0
	StepSTT        = 1
	StepPdfParse   = 2
	StepSummarize  = 3
	StepEmbed      = 4
	StepMapping    = 5
	StepPersist    = 6
	StepTerminal   = StepPersist
)

// Lecture is one end-to-end processing job: an uploaded audio recording
// plus a slide PDF, and everything derived from them.
type Lecture struct {
	ID          int64
	OwnerID     int64
	Name        string
	AudioObject string // storage key; empty while a remote fetch is pending
	PDFObject   string // storage key, required
	SourceURL   string // set when the audio must first be downloaded

	FullScript  string // timestamped transcript
	SummaryJSON string // structured topic summary document

	Status           Status
	CurrentStep      int
	StepTimes        map[int]float64 // step index -> elapsed seconds, sparse
	EstimatedTimeSec float64         // 0 until the estimator finishes
	CreatedAt        time.Time
}

// PageChunk is one parsed PDF page: extracted text plus captioned image
// descriptions. Created only at the final persist step.
type PageChunk struct {
	ID        int64
	LectureID int64
	PageNum   int // 1-based
	Content   string
}

// TopicMapping links one summary topic to its best-matching PDF page.
type TopicMapping struct {
	ID            int64
	LectureID     int64
	SummaryTopic  string
	MappedPage    int
	MappedContent string
}

// ProcessingStats is the process-wide singleton of exponentially smoothed
// per-unit stage costs. Concurrent completions race on the update; the
// value is an ETA heuristic, not a correctness-critical figure.
type ProcessingStats struct {
	SttSecPerMin          float64
	PdfParseSecPerPage    float64
	EmbedSecPerPage       float64
	SummarizeSec          float64
	PdfCombinedSecPerPage float64 // legacy combined parse+embed+map figure
	UpdatedAt             time.Time
}

// DefaultProcessingStats are the lazily-created singleton defaults.
func DefaultProcessingStats() ProcessingStats {
	return ProcessingStats{
		SttSecPerMin:          1.8,
		PdfParseSecPerPage:    1.25,
		EmbedSecPerPage:       0.08,
		SummarizeSec:          1.8,
		PdfCombinedSecPerPage: 1.4,
	}
}

// Smooth applies the exponential moving average rule:
// new = w*old + (1-w)*observed.
func Smooth(old, observed, weight float64) float64 {
	return old*weight + observed*(1-weight)
}

// SummaryTopic is one entry of the structured summary document.
type SummaryTopic struct {
	Topic           string `json:"topic"`
	Summary         string `json:"summary"`
	OriginalSegment string `json:"original_segment"`
	Timestamp       string `json:"timestamp"`
}

// SummaryDocument is the Summarize stage output.
type SummaryDocument struct {
	SummaryList []SummaryTopic `json:"summary_list"`
}

// ParsedPage is one PdfParse stage output entry.
type ParsedPage struct {
	PageNum int
	Content string
}

// Snapshot is the read-only polling view exposed to the web layer.
type Snapshot struct {
	Status           Status          `json:"status"`
	CurrentStep      int             `json:"current_step"`
	StepTimes        map[int]float64 `json:"step_times"`
	EstimatedTimeSec float64         `json:"estimated_time_sec"`
}
