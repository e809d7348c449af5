package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

type fakeLectureStore struct {
	lecture   *models.Lecture
	stepTimes map[int]float64
	steps     []int
	chunks    []models.ParsedPage
	mappings  []models.TopicMapping
}

func newFakeLectureStore(lec *models.Lecture) *fakeLectureStore {
	return &fakeLectureStore{lecture: lec, stepTimes: make(map[int]float64)}
}

func (s *fakeLectureStore) GetByID(ctx context.Context, id int64) (*models.Lecture, error) {
	if s.lecture == nil || s.lecture.ID != id {
		return nil, errors.New("lecture not found")
	}
	copied := *s.lecture
	return &copied, nil
}

func (s *fakeLectureStore) UpdateStep(ctx context.Context, id int64, step int) error {
	if s.lecture.Status == models.StatusProcessing {
		s.lecture.CurrentStep = step
		s.steps = append(s.steps, step)
	}
	return nil
}

func (s *fakeLectureStore) RecordStepTime(ctx context.Context, id int64, step int, seconds float64) error {
	if s.lecture.Status != models.StatusFailed {
		s.stepTimes[step] = seconds
	}
	return nil
}

func (s *fakeLectureStore) MarkCompleted(ctx context.Context, id int64, script, summaryJSON string) error {
	if s.lecture.Status != models.StatusProcessing {
		return errors.New("lecture is no longer processing")
	}
	s.lecture.Status = models.StatusCompleted
	s.lecture.CurrentStep = models.StepTerminal
	s.lecture.FullScript = script
	s.lecture.SummaryJSON = summaryJSON
	return nil
}

func (s *fakeLectureStore) MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error) {
	if s.lecture.Status != models.StatusProcessing {
		return false, nil
	}
	s.lecture.Status = models.StatusFailed
	return true, nil
}

func (s *fakeLectureStore) InsertPageChunks(ctx context.Context, lectureID int64, pages []models.ParsedPage) error {
	s.chunks = append(s.chunks, pages...)
	return nil
}

func (s *fakeLectureStore) InsertTopicMappings(ctx context.Context, lectureID int64, mappings []models.TopicMapping) error {
	s.mappings = append(s.mappings, mappings...)
	return nil
}

type fakeStatsStore struct {
	stats *models.ProcessingStats
	saved bool
}

func (s *fakeStatsStore) GetOrCreate(ctx context.Context) (*models.ProcessingStats, error) {
	if s.stats == nil {
		defaults := models.DefaultProcessingStats()
		s.stats = &defaults
	}
	return s.stats, nil
}

func (s *fakeStatsStore) Save(ctx context.Context, stats *models.ProcessingStats) error {
	s.stats = stats
	s.saved = true
	return nil
}

type fakeArtifactStore struct {
	dir string
}

func (s *fakeArtifactStore) Store(ctx context.Context, reader io.Reader, key, contentType string) (string, error) {
	return key, nil
}

func (s *fakeArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeArtifactStore) FetchToFile(ctx context.Context, key string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(key))
	if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fakeArtifactStore) Delete(ctx context.Context, key string) error { return nil }

func (s *fakeArtifactStore) CleanupBefore(ctx context.Context, threshold time.Time) error {
	return nil
}

type stubSTT struct {
	transcript *Transcript
	err        error
}

func (s *stubSTT) Run(ctx context.Context, audioPath string) (*Transcript, float64, error) {
	if s.err != nil {
		return nil, 0.3, s.err
	}
	return s.transcript, 2.0, nil
}

type stubPdfParse struct {
	pages []models.ParsedPage
	err   error
}

func (s *stubPdfParse) Run(ctx context.Context, pdfPath string) ([]models.ParsedPage, float64, error) {
	if s.err != nil {
		return nil, 0.4, s.err
	}
	return s.pages, 1.0, nil
}

type stubSummarize struct {
	doc *models.SummaryDocument
	err error
}

func (s *stubSummarize) Run(ctx context.Context, script string) (*models.SummaryDocument, string, float64, error) {
	if s.err != nil {
		return nil, "", 0.5, s.err
	}
	return s.doc, `{"summary_list":[]}`, 1.5, nil
}

type stubEmbed struct {
	err error
}

func (s *stubEmbed) Run(ctx context.Context, lectureID int64, pages []models.ParsedPage, script string) (float64, error) {
	return 0.8, s.err
}

type stubMap struct {
	mappings []models.TopicMapping
	err      error
}

func (s *stubMap) Run(ctx context.Context, lectureID int64, summary *models.SummaryDocument) ([]models.TopicMapping, float64, error) {
	if s.err != nil {
		return nil, 0.1, s.err
	}
	return s.mappings, 0.6, nil
}

func testOrchestrator(t *testing.T, store *fakeLectureStore, stats *fakeStatsStore, stt STTStage, parse PdfParseStage, sum SummarizeStage, embed EmbedStage, mapper MapStage) *Orchestrator {
	t.Helper()
	return NewOrchestrator(
		store,
		stats,
		&fakeArtifactStore{dir: t.TempDir()},
		stt,
		parse,
		sum,
		embed,
		mapper,
		config.PipelineConfig{SmoothingWeight: 0.5, SaveOverheadSec: 5},
		logger.NewTestLogger(),
	)
}

func processingLecture() *models.Lecture {
	return &models.Lecture{
		ID:          7,
		Name:        "operating systems week 3",
		AudioObject: "lecture_7/audio.mp3",
		PDFObject:   "lecture_7/slides.pdf",
		Status:      models.StatusProcessing,
		CreatedAt:   time.Now(),
	}
}

func TestProcessHappyPath(t *testing.T) {
	store := newFakeLectureStore(processingLecture())
	stats := &fakeStatsStore{}

	o := testOrchestrator(t, store, stats,
		&stubSTT{transcript: &Transcript{Timestamped: "[00:00] hello", Stripped: "hello"}},
		&stubPdfParse{pages: []models.ParsedPage{{PageNum: 1, Content: "page one"}}},
		&stubSummarize{doc: &models.SummaryDocument{SummaryList: []models.SummaryTopic{{Topic: "t", Summary: "s"}}}},
		&stubEmbed{},
		&stubMap{mappings: []models.TopicMapping{{LectureID: 7, SummaryTopic: "t", MappedPage: 1}}},
	)

	require.NoError(t, o.Process(context.Background(), 7))

	assert.Equal(t, models.StatusCompleted, store.lecture.Status)
	assert.Equal(t, models.StepTerminal, store.lecture.CurrentStep)
	// The persisted transcript keeps its inline timestamps; the stripped
	// variant only ever feeds the summarizer.
	assert.Equal(t, "[00:00] hello", store.lecture.FullScript)
	assert.NotEmpty(t, store.lecture.SummaryJSON)

	// One durable elapsed entry per stage, including the persist step
	// written after completion.
	for _, step := range []int{models.StepSTT, models.StepPdfParse, models.StepSummarize, models.StepEmbed, models.StepMapping, models.StepPersist} {
		assert.Contains(t, store.stepTimes, step, "missing step time for step %d", step)
	}

	assert.Len(t, store.chunks, 1)
	assert.Len(t, store.mappings, 1)
	assert.Equal(t, []int{models.StepSTT, models.StepSummarize, models.StepMapping, models.StepPersist}, store.steps)
	assert.True(t, stats.saved)
}

func TestProcessSTTFailureStillRecordsSiblingTime(t *testing.T) {
	store := newFakeLectureStore(processingLecture())

	o := testOrchestrator(t, store, &fakeStatsStore{},
		&stubSTT{err: errors.New("model unavailable")},
		&stubPdfParse{pages: []models.ParsedPage{{PageNum: 1, Content: "page one"}}},
		&stubSummarize{},
		&stubEmbed{},
		&stubMap{},
	)

	err := o.Process(context.Background(), 7)
	require.Error(t, err)
	var tierErr *TierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, "stt", tierErr.Stage)

	assert.Equal(t, models.StatusFailed, store.lecture.Status)
	// The parse stage finished before the tier failed, so its elapsed
	// time still lands durably; the failed stage records nothing.
	assert.Contains(t, store.stepTimes, models.StepPdfParse)
	assert.NotContains(t, store.stepTimes, models.StepSTT)
	assert.Empty(t, store.chunks)
	assert.Empty(t, store.mappings)
}

func TestProcessSecondTierFailure(t *testing.T) {
	store := newFakeLectureStore(processingLecture())

	o := testOrchestrator(t, store, &fakeStatsStore{},
		&stubSTT{transcript: &Transcript{Timestamped: "[00:00] hi", Stripped: "hi"}},
		&stubPdfParse{pages: []models.ParsedPage{{PageNum: 1, Content: "p"}}},
		&stubSummarize{err: errors.New("bad json")},
		&stubEmbed{},
		&stubMap{},
	)

	err := o.Process(context.Background(), 7)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, store.lecture.Status)

	// Tier 1 finished before the failure, so its timings survive.
	assert.Contains(t, store.stepTimes, models.StepSTT)
	assert.Contains(t, store.stepTimes, models.StepPdfParse)
	assert.Contains(t, store.stepTimes, models.StepEmbed)
	assert.NotContains(t, store.stepTimes, models.StepSummarize)
}

func TestProcessSkipsNonProcessingLecture(t *testing.T) {
	lec := processingLecture()
	lec.Status = models.StatusFailed
	store := newFakeLectureStore(lec)

	o := testOrchestrator(t, store, &fakeStatsStore{},
		&stubSTT{}, &stubPdfParse{}, &stubSummarize{}, &stubEmbed{}, &stubMap{})

	require.NoError(t, o.Process(context.Background(), 7))
	assert.Equal(t, models.StatusFailed, store.lecture.Status)
	assert.Empty(t, store.steps)
}

func TestProcessFailsWithoutAudio(t *testing.T) {
	lec := processingLecture()
	lec.AudioObject = ""
	store := newFakeLectureStore(lec)

	o := testOrchestrator(t, store, &fakeStatsStore{},
		&stubSTT{}, &stubPdfParse{}, &stubSummarize{}, &stubEmbed{}, &stubMap{})

	err := o.Process(context.Background(), 7)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, store.lecture.Status)
}

func TestUpdateStatsSmoothesObservedRates(t *testing.T) {
	store := newFakeLectureStore(processingLecture())
	stats := &fakeStatsStore{}

	o := testOrchestrator(t, store, stats,
		&stubSTT{}, &stubPdfParse{}, &stubSummarize{}, &stubEmbed{}, &stubMap{})

	tier1 := map[int]StageOutcome{
		models.StepSTT:      {Elapsed: 36},
		models.StepPdfParse: {Elapsed: 10},
	}
	tier2 := map[int]StageOutcome{
		models.StepSummarize: {Elapsed: 2.2},
		models.StepEmbed:     {Elapsed: 1.0},
	}

	o.updateStats(context.Background(), logger.NewTestLogger(), 10, 10, tier1, tier2, 0.5)

	require.True(t, stats.saved)
	defaults := models.DefaultProcessingStats()
	// new = 0.5*old + 0.5*observed with the default seed values
	assert.InDelta(t, 0.5*defaults.SttSecPerMin+0.5*3.6, stats.stats.SttSecPerMin, 1e-9)
	assert.InDelta(t, 0.5*defaults.PdfParseSecPerPage+0.5*1.0, stats.stats.PdfParseSecPerPage, 1e-9)
	assert.InDelta(t, 0.5*defaults.EmbedSecPerPage+0.5*0.1, stats.stats.EmbedSecPerPage, 1e-9)
	assert.InDelta(t, 0.5*defaults.SummarizeSec+0.5*2.2, stats.stats.SummarizeSec, 1e-9)
	assert.InDelta(t, 0.5*defaults.PdfCombinedSecPerPage+0.5*1.15, stats.stats.PdfCombinedSecPerPage, 1e-9)
}
