package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/internal/ai"
	"github.com/lecturanote/lecture-processor/internal/estimate"
	"github.com/lecturanote/lecture-processor/internal/fetch"
	"github.com/lecturanote/lecture-processor/internal/pipeline"
	"github.com/lecturanote/lecture-processor/internal/reaper"
	"github.com/lecturanote/lecture-processor/internal/repository"
	"github.com/lecturanote/lecture-processor/pkg/database"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/queue"
	"github.com/lecturanote/lecture-processor/pkg/storage/minio"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore/chroma"
	"github.com/lecturanote/lecture-processor/pkg/worker"
)

func main() {
	sweepOnce := flag.Bool("sweep", false, "run one reaper sweep and exit")
	sweepDryRun := flag.Bool("dry-run", false, "with -sweep, report stuck lectures without updating them")
	sweepMinutes := flag.Int("minutes", 0, "with -sweep, override the stuck threshold in minutes")
	resetStats := flag.Bool("reset-stats", false, "reset processing statistics to defaults and exit")
	flag.Parse()

	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	pcfg := config.GetPipelineConfig()

	pool, err := database.NewPostgresPool(ctx, config.GetPostgresConfig().DSN, log)
	if err != nil {
		log.Fatal("Failed to connect to postgres", logger.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("Failed to run migrations", logger.Error(err))
	}

	lectureRepo := repository.NewLectureRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)

	if *resetStats {
		stats, err := statsRepo.Reset(ctx)
		if err != nil {
			log.Fatal("Failed to reset stats", logger.Error(err))
		}
		fmt.Printf("processing stats reset: %+v\n", *stats)
		return
	}

	stuckThreshold := time.Duration(pcfg.StuckThresholdMin) * time.Minute
	if *sweepMinutes > 0 {
		stuckThreshold = time.Duration(*sweepMinutes) * time.Minute
	}
	sweeper := reaper.New(lectureRepo, log)

	if *sweepOnce {
		found, updated, err := sweeper.Sweep(ctx, stuckThreshold, *sweepDryRun)
		if err != nil {
			log.Fatal("Sweep failed", logger.Error(err))
		}
		fmt.Printf("sweep: found=%d updated=%d dry_run=%v\n", found, updated, *sweepDryRun)
		return
	}

	store, err := minio.NewMinioStorage(log)
	if err != nil {
		log.Fatal("Failed to init object storage", logger.Error(err))
	}

	gemini, err := ai.NewGeminiClient(ctx, log)
	if err != nil {
		log.Fatal("Failed to init gemini client", logger.Error(err))
	}
	ollama := ai.NewOllamaClient()
	defer ollama.Close()

	vectors := chroma.NewChromaStore(log)

	orchestrator := pipeline.NewOrchestrator(
		lectureRepo,
		statsRepo,
		store,
		pipeline.NewSTTWorker(gemini),
		pipeline.NewPdfParseWorker(ollama, pcfg.PdfParseBatchSize, log),
		pipeline.NewSummarizeWorker(gemini),
		pipeline.NewEmbedWorker(gemini, vectors, pcfg.ScriptChunkLines, pcfg.EmbedBatchSize, log),
		pipeline.NewMapWorker(gemini, vectors, log),
		*pcfg,
		log,
	)

	queueClient := queue.NewClient(config.GetRedisConfig(), pcfg, log)
	defer queueClient.Close()

	estimator := estimate.NewEstimator(lectureRepo, statsRepo, store, *pcfg, log)
	fetcher := fetch.NewFetcher(lectureRepo, store, queueClient, log)

	redisCfg := config.GetRedisConfig()
	lectureWorker, err := worker.NewLectureWorker(
		&worker.Config{
			RedisAddr:   redisCfg.Addr,
			RedisDB:     redisCfg.DB,
			Concurrency: pcfg.WorkerConcurrency,
			Queues:      queue.QueuePriorities,
		},
		orchestrator,
		estimator,
		fetcher,
		sweeper,
		store,
		stuckThreshold,
		time.Duration(pcfg.ArtifactRetentionDays)*24*time.Hour,
		log,
	)
	if err != nil {
		log.Fatal("Failed to create lecture worker", logger.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := lectureWorker.Start(runCtx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	lectureWorker.Stop()
	log.Info("Worker stopped")
}
