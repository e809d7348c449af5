package pipeline

import (
	"context"
	"sync"
)

// Stage is one schedulable unit of work. Its run function wraps a stage
// worker, returns the worker's measured elapsed seconds and converts any
// fault into an error value.
type Stage struct {
	Step int
	Name string
	Run  func(ctx context.Context) (elapsed float64, err error)
}

// StageOutcome is one stage's result as seen by the scheduler.
type StageOutcome struct {
	Step    int
	Name    string
	Elapsed float64
	Err     error
}

// TierError reports the first stage failure within a tier, in completion
// order. Sibling stages have already finished by the time it is returned.
type TierError struct {
	Stage string
	Err   error
}

func (e *TierError) Error() string {
	return e.Stage + " stage failed: " + e.Err.Error()
}

func (e *TierError) Unwrap() error {
	return e.Err
}

// RunTier executes all stages concurrently and waits for every one of them
// to finish, success or failure. There is no short-circuit on the first
// error, so no stage is left running unobserved. As each stage
// completes successfully, onFinish is invoked immediately with its step
// and elapsed seconds so progress is durable before the tier as a whole
// resolves. Returns the outcomes keyed by step and the first error in
// completion order, if any.
func RunTier(ctx context.Context, stages []Stage, onFinish func(step int, elapsed float64)) (map[int]StageOutcome, error) {
	outcomes := make(map[int]StageOutcome, len(stages))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, st := range stages {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()

			elapsed, err := st.Run(ctx)

			mu.Lock()
			outcomes[st.Step] = StageOutcome{
				Step:    st.Step,
				Name:    st.Name,
				Elapsed: elapsed,
				Err:     err,
			}
			if err != nil && firstErr == nil {
				firstErr = &TierError{Stage: st.Name, Err: err}
			}
			mu.Unlock()

			if err == nil && onFinish != nil {
				onFinish(st.Step, elapsed)
			}
		}()
	}

	wg.Wait()
	return outcomes, firstErr
}
