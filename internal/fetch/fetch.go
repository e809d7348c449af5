package fetch

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/storage"
)

// LectureStore is the repository surface the fetcher needs.
type LectureStore interface {
	GetByID(ctx context.Context, id int64) (*models.Lecture, error)
	SetAudioObject(ctx context.Context, id int64, key string) error
	MarkFailedIfProcessing(ctx context.Context, id int64) (bool, error)
}

// Enqueuer chains a fetched lecture into the processing pipeline.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, lectureID int64) (string, error)
}

// Fetcher downloads a lecture's remote audio into object storage and then
// hands the lecture to the pipeline. It exists so uploads by URL share the
// same pipeline entry point as direct file uploads.
type Fetcher struct {
	lectures LectureStore
	store    storage.Storage
	enqueuer Enqueuer
	client   *http.Client
	log      logger.Logger
}

func NewFetcher(lectures LectureStore, store storage.Storage, enqueuer Enqueuer, log logger.Logger) *Fetcher {
	return &Fetcher{
		lectures: lectures,
		store:    store,
		enqueuer: enqueuer,
		client:   &http.Client{Timeout: 25 * time.Minute},
		log:      log.Named("fetch"),
	}
}

// Fetch downloads the source URL, stores it as the lecture's audio object,
// and enqueues processing. A download failure fails the lecture; there is
// nothing to process without audio.
func (f *Fetcher) Fetch(ctx context.Context, lectureID int64, sourceURL string) error {
	lec, err := f.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return fmt.Errorf("load lecture %d: %w", lectureID, err)
	}
	if lec.Status != models.StatusProcessing {
		f.log.Info("lecture not in processing state, fetch skipped",
			logger.Int64("lecture_id", lectureID),
			logger.String("status", string(lec.Status)))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return f.fail(ctx, lectureID, fmt.Errorf("build request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail(ctx, lectureID, fmt.Errorf("download audio: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.fail(ctx, lectureID, fmt.Errorf("download audio: unexpected status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	key := storage.AudioKey(lectureID, audioExt(sourceURL, contentType))

	if _, err := f.store.Store(ctx, resp.Body, key, contentType); err != nil {
		return f.fail(ctx, lectureID, fmt.Errorf("store audio: %w", err))
	}
	if err := f.lectures.SetAudioObject(ctx, lectureID, key); err != nil {
		return f.fail(ctx, lectureID, fmt.Errorf("record audio object: %w", err))
	}

	if _, err := f.enqueuer.EnqueueProcess(ctx, lectureID); err != nil {
		return f.fail(ctx, lectureID, fmt.Errorf("enqueue processing: %w", err))
	}

	f.log.Info("remote audio fetched",
		logger.Int64("lecture_id", lectureID),
		logger.String("object", key))
	return nil
}

func (f *Fetcher) fail(ctx context.Context, lectureID int64, cause error) error {
	if _, err := f.lectures.MarkFailedIfProcessing(ctx, lectureID); err != nil {
		f.log.Error("failure mark failed",
			logger.Int64("lecture_id", lectureID),
			logger.Error(err))
	}
	return cause
}

// audioExt picks a file extension from the URL path, falling back to the
// response content type.
func audioExt(sourceURL, contentType string) string {
	if ext := path.Ext(strings.SplitN(sourceURL, "?", 2)[0]); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".mp3"
}
