package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTierWaitsForAllStages(t *testing.T) {
	var slowDone bool

	outcomes, err := RunTier(context.Background(), []Stage{
		{
			Step: 1,
			Name: "fast_failure",
			Run: func(ctx context.Context) (float64, error) {
				return 0.1, errors.New("boom")
			},
		},
		{
			Step: 2,
			Name: "slow_success",
			Run: func(ctx context.Context) (float64, error) {
				time.Sleep(50 * time.Millisecond)
				slowDone = true
				return 0.5, nil
			},
		},
	}, nil)

	require.Error(t, err)
	assert.True(t, slowDone, "tier must not resolve before every stage finished")
	assert.Len(t, outcomes, 2)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
}

func TestRunTierReportsFirstFailureInCompletionOrder(t *testing.T) {
	_, err := RunTier(context.Background(), []Stage{
		{
			Step: 1,
			Name: "late_failure",
			Run: func(ctx context.Context) (float64, error) {
				time.Sleep(60 * time.Millisecond)
				return 0, errors.New("late")
			},
		},
		{
			Step: 2,
			Name: "early_failure",
			Run: func(ctx context.Context) (float64, error) {
				return 0, errors.New("early")
			},
		},
	}, nil)

	require.Error(t, err)
	var tierErr *TierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, "early_failure", tierErr.Stage)
	assert.EqualError(t, tierErr.Err, "early")
}

func TestRunTierCallsOnFinishOnlyForSuccesses(t *testing.T) {
	var mu sync.Mutex
	finished := make(map[int]float64)

	_, err := RunTier(context.Background(), []Stage{
		{
			Step: 1,
			Name: "ok",
			Run: func(ctx context.Context) (float64, error) {
				return 1.5, nil
			},
		},
		{
			Step: 2,
			Name: "broken",
			Run: func(ctx context.Context) (float64, error) {
				return 0.2, errors.New("broken")
			},
		},
	}, func(step int, elapsed float64) {
		mu.Lock()
		finished[step] = elapsed
		mu.Unlock()
	})

	require.Error(t, err)
	assert.Equal(t, map[int]float64{1: 1.5}, finished)
}

func TestRunTierAllSuccess(t *testing.T) {
	outcomes, err := RunTier(context.Background(), []Stage{
		{Step: 1, Name: "a", Run: func(ctx context.Context) (float64, error) { return 1, nil }},
		{Step: 2, Name: "b", Run: func(ctx context.Context) (float64, error) { return 2, nil }},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1.0, outcomes[1].Elapsed)
	assert.Equal(t, 2.0, outcomes[2].Elapsed)
}
