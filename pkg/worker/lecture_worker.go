package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/queue"
	"github.com/lecturanote/lecture-processor/pkg/storage"
)

// Processor runs the full pipeline for one lecture.
type Processor interface {
	Process(ctx context.Context, lectureID int64) error
}

// Estimator computes and stores a lecture's expected processing time.
type Estimator interface {
	Estimate(ctx context.Context, lectureID int64) error
}

// AudioFetcher downloads remote audio and chains into processing.
type AudioFetcher interface {
	Fetch(ctx context.Context, lectureID int64, sourceURL string) error
}

// Sweeper recovers lectures stuck in the processing state.
type Sweeper interface {
	Sweep(ctx context.Context, threshold time.Duration, dryRun bool) (found, updated int, err error)
}

// LectureWorker consumes the lecture task queues. It also owns the reaper
// schedule: one sweep at startup to clean up rows orphaned by the previous
// crash, then periodic sweeps on a cron timer.
type LectureWorker struct {
	BaseWorker

	processor Processor
	estimator Estimator
	fetcher   AudioFetcher
	sweeper   Sweeper
	artifacts storage.Storage

	stuckThreshold time.Duration
	retention      time.Duration
	cron           *cron.Cron
}

func NewLectureWorker(
	cfg *Config,
	processor Processor,
	estimator Estimator,
	fetcher AudioFetcher,
	sweeper Sweeper,
	artifacts storage.Storage,
	stuckThreshold time.Duration,
	retention time.Duration,
	log logger.Logger,
) (*LectureWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &LectureWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		processor:      processor,
		estimator:      estimator,
		fetcher:        fetcher,
		sweeper:        sweeper,
		artifacts:      artifacts,
		stuckThreshold: stuckThreshold,
		retention:      retention,
		cron:           cron.New(),
	}

	w.registerHandlers()
	if err := w.scheduleJobs(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *LectureWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeLectureProcess, w.handleProcess)
	w.mux.HandleFunc(queue.TaskTypeLectureEstimate, w.handleEstimate)
	w.mux.HandleFunc(queue.TaskTypeLectureFetch, w.handleFetch)
}

func (w *LectureWorker) scheduleJobs() error {
	_, err := w.cron.AddFunc("*/5 * * * *", func() {
		w.runSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}

	if w.artifacts != nil && w.retention > 0 {
		_, err = w.cron.AddFunc("0 3 * * *", func() {
			threshold := time.Now().Add(-w.retention)
			if err := w.artifacts.CleanupBefore(context.Background(), threshold); err != nil {
				w.logger.Error("artifact retention sweep failed", logger.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule retention sweep: %w", err)
		}
	}
	return nil
}

func (w *LectureWorker) runSweep(ctx context.Context) {
	found, updated, err := w.sweeper.Sweep(ctx, w.stuckThreshold, false)
	if err != nil {
		w.logger.Error("reaper sweep failed", logger.Error(err))
		return
	}
	if found > 0 {
		w.logger.Warn("reaper sweep recovered lectures",
			logger.Int("found", found),
			logger.Int("updated", updated))
	}
}

func (w *LectureWorker) handleProcess(ctx context.Context, t *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal process payload: %w", err)
	}

	w.logger.Info("processing lecture",
		logger.Int64("lecture_id", payload.LectureID))

	if err := w.processor.Process(ctx, payload.LectureID); err != nil {
		w.logger.Error("lecture processing failed",
			logger.Int64("lecture_id", payload.LectureID),
			logger.Error(err))
		return err
	}
	return nil
}

func (w *LectureWorker) handleEstimate(ctx context.Context, t *asynq.Task) error {
	var payload queue.EstimatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal estimate payload: %w", err)
	}

	if err := w.estimator.Estimate(ctx, payload.LectureID); err != nil {
		w.logger.Error("estimate failed",
			logger.Int64("lecture_id", payload.LectureID),
			logger.Error(err))
		return err
	}
	return nil
}

func (w *LectureWorker) handleFetch(ctx context.Context, t *asynq.Task) error {
	var payload queue.FetchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal fetch payload: %w", err)
	}

	if err := w.fetcher.Fetch(ctx, payload.LectureID, payload.SourceURL); err != nil {
		w.logger.Error("audio fetch failed",
			logger.Int64("lecture_id", payload.LectureID),
			logger.String("source_url", payload.SourceURL),
			logger.Error(err))
		return err
	}
	return nil
}

func (w *LectureWorker) Start(ctx context.Context) error {
	// Recover anything the previous worker left processing before taking
	// new work.
	w.runSweep(ctx)
	w.cron.Start()

	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

func (w *LectureWorker) Stop() error {
	w.cron.Stop()
	return w.BaseWorker.Stop()
}
