package handlers

import (
	"github.com/lecturanote/lecture-processor/internal/service/lecture"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

type Handlers struct {
	Lecture *LectureHandler
}

func NewHandlers(
	lectureService lecture.LectureService,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Lecture: NewLectureHandler(lectureService, logger),
	}
}
