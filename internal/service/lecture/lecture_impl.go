package lecture

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/lecturanote/lecture-processor/internal/models"
	"github.com/lecturanote/lecture-processor/internal/utils/validator"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/storage"
)

// ErrNotReady signals that a lecture exists but has not completed
// processing, so derived artifacts are not yet available.
var ErrNotReady = errors.New("lecture processing is not complete")

// Store is the repository surface the service needs.
type Store interface {
	Create(ctx context.Context, lec *models.Lecture) error
	GetByID(ctx context.Context, id int64) (*models.Lecture, error)
	SetPDFObject(ctx context.Context, id int64, key string) error
	SetAudioObject(ctx context.Context, id int64, key string) error
	Snapshot(ctx context.Context, id int64) (*models.Snapshot, error)
}

// Enqueuer queues the background work a new lecture needs.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, lectureID int64) (string, error)
	EnqueueEstimate(ctx context.Context, lectureID int64) (string, error)
	EnqueueFetch(ctx context.Context, lectureID int64, sourceURL string) (string, error)
}

// Answerer answers questions grounded on a processed lecture.
type Answerer interface {
	Answer(ctx context.Context, lectureID int64, question string) (string, error)
}

type lectureService struct {
	store     Store
	artifacts storage.Storage
	enqueuer  Enqueuer
	answerer  Answerer
	validator *validator.UploadValidator
	log       logger.Logger
}

func NewLectureService(
	store Store,
	artifacts storage.Storage,
	enqueuer Enqueuer,
	answerer Answerer,
	v *validator.UploadValidator,
	log logger.Logger,
) LectureService {
	return &lectureService{
		store:     store,
		artifacts: artifacts,
		enqueuer:  enqueuer,
		answerer:  answerer,
		validator: v,
		log:       log.Named("lecture_service"),
	}
}

func (s *lectureService) CreateFromUpload(ctx context.Context, ownerID int64, name string, audio, pdf *multipart.FileHeader) (*models.Lecture, error) {
	audioExt, err := s.validator.Validate(audio, validator.KindAudio)
	if err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(pdf, validator.KindPDF); err != nil {
		return nil, err
	}

	lec := &models.Lecture{OwnerID: ownerID, Name: name}
	if err := s.store.Create(ctx, lec); err != nil {
		return nil, fmt.Errorf("create lecture: %w", err)
	}

	if err := s.storeUpload(ctx, lec.ID, pdf, storage.PDFKey(lec.ID)); err != nil {
		return nil, err
	}
	if err := s.store.SetPDFObject(ctx, lec.ID, storage.PDFKey(lec.ID)); err != nil {
		return nil, fmt.Errorf("record pdf object: %w", err)
	}

	audioKey := storage.AudioKey(lec.ID, audioExt)
	if err := s.storeUpload(ctx, lec.ID, audio, audioKey); err != nil {
		return nil, err
	}
	if err := s.store.SetAudioObject(ctx, lec.ID, audioKey); err != nil {
		return nil, fmt.Errorf("record audio object: %w", err)
	}
	lec.PDFObject = storage.PDFKey(lec.ID)
	lec.AudioObject = audioKey

	if _, err := s.enqueuer.EnqueueEstimate(ctx, lec.ID); err != nil {
		s.log.Warn("estimate enqueue failed",
			logger.Int64("lecture_id", lec.ID),
			logger.Error(err))
	}
	if _, err := s.enqueuer.EnqueueProcess(ctx, lec.ID); err != nil {
		return nil, fmt.Errorf("enqueue processing: %w", err)
	}

	s.log.Info("lecture created from upload",
		logger.Int64("lecture_id", lec.ID),
		logger.Int64("owner_id", ownerID))
	return lec, nil
}

func (s *lectureService) CreateFromURL(ctx context.Context, ownerID int64, name, sourceURL string, pdf *multipart.FileHeader) (*models.Lecture, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("source url is required")
	}
	if _, err := s.validator.Validate(pdf, validator.KindPDF); err != nil {
		return nil, err
	}

	lec := &models.Lecture{OwnerID: ownerID, Name: name, SourceURL: sourceURL}
	if err := s.store.Create(ctx, lec); err != nil {
		return nil, fmt.Errorf("create lecture: %w", err)
	}

	if err := s.storeUpload(ctx, lec.ID, pdf, storage.PDFKey(lec.ID)); err != nil {
		return nil, err
	}
	if err := s.store.SetPDFObject(ctx, lec.ID, storage.PDFKey(lec.ID)); err != nil {
		return nil, fmt.Errorf("record pdf object: %w", err)
	}
	lec.PDFObject = storage.PDFKey(lec.ID)

	// The estimate can run on the slides alone while the audio downloads.
	if _, err := s.enqueuer.EnqueueEstimate(ctx, lec.ID); err != nil {
		s.log.Warn("estimate enqueue failed",
			logger.Int64("lecture_id", lec.ID),
			logger.Error(err))
	}
	if _, err := s.enqueuer.EnqueueFetch(ctx, lec.ID, sourceURL); err != nil {
		return nil, fmt.Errorf("enqueue fetch: %w", err)
	}

	s.log.Info("lecture created from url",
		logger.Int64("lecture_id", lec.ID),
		logger.Int64("owner_id", ownerID))
	return lec, nil
}

func (s *lectureService) Status(ctx context.Context, id int64) (*models.Snapshot, error) {
	return s.store.Snapshot(ctx, id)
}

func (s *lectureService) Result(ctx context.Context, id int64) (*models.Lecture, error) {
	lec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lec.Status != models.StatusCompleted {
		return nil, ErrNotReady
	}
	return lec, nil
}

func (s *lectureService) Answer(ctx context.Context, id int64, question string) (string, error) {
	lec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if lec.Status != models.StatusCompleted {
		return "", ErrNotReady
	}
	return s.answerer.Answer(ctx, id, question)
}

func (s *lectureService) storeUpload(ctx context.Context, lectureID int64, header *multipart.FileHeader, key string) error {
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	contentType := header.Header.Get("Content-Type")
	if _, err := s.artifacts.Store(ctx, f, key, contentType); err != nil {
		return fmt.Errorf("store upload %s: %w", key, err)
	}
	return nil
}
