package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lecturanote/lecture-processor/api/handlers"
	"github.com/lecturanote/lecture-processor/api/routes"
	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/internal/ai"
	"github.com/lecturanote/lecture-processor/internal/rag"
	"github.com/lecturanote/lecture-processor/internal/repository"
	"github.com/lecturanote/lecture-processor/internal/service/lecture"
	"github.com/lecturanote/lecture-processor/internal/utils/validator"
	"github.com/lecturanote/lecture-processor/pkg/database"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/queue"
	"github.com/lecturanote/lecture-processor/pkg/storage/minio"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore/chroma"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, config.GetPostgresConfig().DSN, log)
	if err != nil {
		log.Fatal("Failed to connect to postgres", logger.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("Failed to run migrations", logger.Error(err))
	}

	store, err := minio.NewMinioStorage(log)
	if err != nil {
		log.Fatal("Failed to init object storage", logger.Error(err))
	}

	gemini, err := ai.NewGeminiClient(ctx, log)
	if err != nil {
		log.Fatal("Failed to init gemini client", logger.Error(err))
	}

	lectureRepo := repository.NewLectureRepo(pool)
	queueClient := queue.NewClient(config.GetRedisConfig(), config.GetPipelineConfig(), log)
	defer queueClient.Close()

	ragService := rag.NewService(gemini, gemini, chroma.NewChromaStore(log), log)
	uploadValidator := validator.NewUploadValidator(nil, log)
	lectureService := lecture.NewLectureService(lectureRepo, store, queueClient, ragService, uploadValidator, log)

	h := handlers.NewHandlers(lectureService, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	serverCfg := config.GetServerConfig()
	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("port", serverCfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
