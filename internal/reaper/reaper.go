package reaper

import (
	"context"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

// LectureStore is the repository surface the reaper needs. The flip goes
// through MarkFailedIfProcessing so a lecture that completed between the
// scan and the flip is left alone.
type LectureStore interface {
	FindStuck(ctx context.Context, cutoff time.Time) ([]models.Lecture, error)
	MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error)
}

// Reaper fails lectures that have sat in the processing state longer than
// the threshold, recovering rows orphaned by worker crashes.
type Reaper struct {
	lectures LectureStore
	log      logger.Logger
}

func New(lectures LectureStore, log logger.Logger) *Reaper {
	return &Reaper{
		lectures: lectures,
		log:      log.Named("reaper"),
	}
}

// Sweep scans for lectures older than threshold and still processing, and
// flips each one to failed. With dryRun set it only reports what it would
// flip. Returns how many stuck lectures were found and how many were
// actually updated.
func (r *Reaper) Sweep(ctx context.Context, threshold time.Duration, dryRun bool) (found, updated int, err error) {
	cutoff := time.Now().Add(-threshold)
	stuck, err := r.lectures.FindStuck(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	found = len(stuck)

	for _, lec := range stuck {
		age := time.Since(lec.CreatedAt)
		if dryRun {
			r.log.Info("stuck lecture (dry run, not updated)",
				logger.Int64("lecture_id", lec.ID),
				logger.Int("current_step", lec.CurrentStep),
				logger.Duration("age", age))
			continue
		}

		flipped, err := r.lectures.MarkFailedIfProcessing(ctx, lec.ID)
		if err != nil {
			r.log.Error("stuck lecture flip failed",
				logger.Int64("lecture_id", lec.ID),
				logger.Error(err))
			continue
		}
		if !flipped {
			// Finished or was reaped between the scan and the flip.
			r.log.Info("stuck lecture resolved itself, skipped",
				logger.Int64("lecture_id", lec.ID))
			continue
		}

		updated++
		r.log.Warn("stuck lecture marked failed",
			logger.Int64("lecture_id", lec.ID),
			logger.Int("current_step", lec.CurrentStep),
			logger.Duration("age", age))
	}

	r.log.Info("reaper sweep finished",
		logger.Int("found", found),
		logger.Int("updated", updated),
		logger.Bool("dry_run", dryRun))
	return found, updated, nil
}
