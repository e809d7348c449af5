package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

type fakeStore struct {
	stuck      []models.Lecture
	processing map[int64]bool
	flipped    []int64
	cutoff     time.Time
}

func (f *fakeStore) FindStuck(ctx context.Context, cutoff time.Time) ([]models.Lecture, error) {
	f.cutoff = cutoff
	return f.stuck, nil
}

func (f *fakeStore) MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error) {
	if !f.processing[id] {
		return false, nil
	}
	f.processing[id] = false
	f.flipped = append(f.flipped, id)
	return true, nil
}

func TestSweepFlipsStuckLectures(t *testing.T) {
	store := &fakeStore{
		stuck: []models.Lecture{
			{ID: 1, Status: models.StatusProcessing, CreatedAt: time.Now().Add(-time.Hour)},
			{ID: 2, Status: models.StatusProcessing, CreatedAt: time.Now().Add(-2 * time.Hour)},
		},
		processing: map[int64]bool{1: true, 2: true},
	}
	r := New(store, logger.NewTestLogger())

	found, updated, err := r.Sweep(context.Background(), 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	assert.Equal(t, 2, updated)
	assert.ElementsMatch(t, []int64{1, 2}, store.flipped)
}

func TestSweepDryRunTouchesNothing(t *testing.T) {
	store := &fakeStore{
		stuck: []models.Lecture{
			{ID: 1, Status: models.StatusProcessing},
			{ID: 2, Status: models.StatusProcessing},
			{ID: 3, Status: models.StatusProcessing},
		},
		processing: map[int64]bool{1: true, 2: true, 3: true},
	}
	r := New(store, logger.NewTestLogger())

	found, updated, err := r.Sweep(context.Background(), 15*time.Minute, true)
	require.NoError(t, err)
	assert.Equal(t, 3, found)
	assert.Equal(t, 0, updated)
	assert.Empty(t, store.flipped)
}

func TestSweepSkipsLecturesThatResolvedInBetween(t *testing.T) {
	// Lecture 2 completed between the scan and the flip attempt.
	store := &fakeStore{
		stuck: []models.Lecture{
			{ID: 1, Status: models.StatusProcessing},
			{ID: 2, Status: models.StatusProcessing},
		},
		processing: map[int64]bool{1: true, 2: false},
	}
	r := New(store, logger.NewTestLogger())

	found, updated, err := r.Sweep(context.Background(), 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	assert.Equal(t, 1, updated)
	assert.Equal(t, []int64{1}, store.flipped)
}

func TestSweepCutoffUsesThreshold(t *testing.T) {
	store := &fakeStore{processing: map[int64]bool{}}
	r := New(store, logger.NewTestLogger())

	before := time.Now().Add(-30 * time.Minute)
	_, _, err := r.Sweep(context.Background(), 30*time.Minute, false)
	require.NoError(t, err)
	assert.WithinDuration(t, before, store.cutoff, 2*time.Second)
}
