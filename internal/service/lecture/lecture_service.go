package lecture

import (
	"context"
	"mime/multipart"

	"github.com/lecturanote/lecture-processor/internal/models"
)

// LectureService is the web layer's view of lecture lifecycle operations.
type LectureService interface {
	// CreateFromUpload registers a lecture from a direct audio upload plus
	// its slide PDF and queues estimation and processing.
	CreateFromUpload(ctx context.Context, ownerID int64, name string, audio, pdf *multipart.FileHeader) (*models.Lecture, error)
	// CreateFromURL registers a lecture whose audio must first be
	// downloaded from a remote URL.
	CreateFromURL(ctx context.Context, ownerID int64, name, sourceURL string, pdf *multipart.FileHeader) (*models.Lecture, error)
	// Status returns the polling snapshot of a lecture's progress.
	Status(ctx context.Context, id int64) (*models.Snapshot, error)
	// Result returns the completed lecture with its transcript and summary.
	Result(ctx context.Context, id int64) (*models.Lecture, error)
	// Answer responds to a question grounded on the lecture's content.
	Answer(ctx context.Context, id int64, question string) (string, error)
}
