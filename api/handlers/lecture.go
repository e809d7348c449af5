package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lecturanote/lecture-processor/internal/repository"
	"github.com/lecturanote/lecture-processor/internal/service/lecture"
	"github.com/lecturanote/lecture-processor/internal/utils/validator"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

type LectureHandler struct {
	service lecture.LectureService
	logger  logger.Logger
}

// CreateResponse is returned after a lecture upload is accepted.
type CreateResponse struct {
	LectureID int64  `json:"lecture_id"`
	Status    string `json:"status"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// QueryRequest is a question about one lecture.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

func NewLectureHandler(service lecture.LectureService, logger logger.Logger) *LectureHandler {
	return &LectureHandler{
		service: service,
		logger:  logger,
	}
}

// Create accepts a multipart upload with the slide PDF plus either the
// audio file itself or a source_url to download it from.
func (h *LectureHandler) Create(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		h.handleError(c, http.StatusBadRequest, "Lecture name is required", nil)
		return
	}
	ownerID, err := strconv.ParseInt(c.PostForm("owner_id"), 10, 64)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Valid owner_id is required", err)
		return
	}

	pdf, err := c.FormFile("pdf")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Slide PDF upload is required", err)
		return
	}

	if sourceURL := c.PostForm("source_url"); sourceURL != "" {
		created, err := h.service.CreateFromURL(c.Request.Context(), ownerID, name, sourceURL, pdf)
		if err != nil {
			h.handleCreateError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, CreateResponse{
			LectureID: created.ID,
			Status:    string(created.Status),
			Name:      created.Name,
			CreatedAt: created.CreatedAt.Format(time.RFC3339),
		})
		return
	}

	audio, err := c.FormFile("audio")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Audio upload or source_url is required", err)
		return
	}

	created, err := h.service.CreateFromUpload(c.Request.Context(), ownerID, name, audio, pdf)
	if err != nil {
		h.handleCreateError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, CreateResponse{
		LectureID: created.ID,
		Status:    string(created.Status),
		Name:      created.Name,
		CreatedAt: created.CreatedAt.Format(time.RFC3339),
	})
}

// Status serves the progress snapshot the frontend polls.
func (h *LectureHandler) Status(c *gin.Context) {
	id, ok := h.lectureID(c)
	if !ok {
		return
	}

	snapshot, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Lecture not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// Result serves the completed transcript and summary.
func (h *LectureHandler) Result(c *gin.Context) {
	id, ok := h.lectureID(c)
	if !ok {
		return
	}

	lec, err := h.service.Result(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.handleError(c, http.StatusNotFound, "Lecture not found", err)
		case errors.Is(err, lecture.ErrNotReady):
			h.handleError(c, http.StatusConflict, "Lecture is still processing", err)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to get result", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lecture_id":   lec.ID,
		"name":         lec.Name,
		"full_script":  lec.FullScript,
		"summary_json": lec.SummaryJSON,
		"created_at":   lec.CreatedAt.Format(time.RFC3339),
	})
}

// Query answers a question about a completed lecture.
func (h *LectureHandler) Query(c *gin.Context) {
	id, ok := h.lectureID(c)
	if !ok {
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Question is required", err)
		return
	}

	answer, err := h.service.Answer(c.Request.Context(), id, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.handleError(c, http.StatusNotFound, "Lecture not found", err)
		case errors.Is(err, lecture.ErrNotReady):
			h.handleError(c, http.StatusConflict, "Lecture is still processing", err)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to answer question", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lecture_id": id,
		"question":   req.Question,
		"answer":     answer,
	})
}

func (h *LectureHandler) lectureID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("lectureId"), 10, 64)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Valid lecture ID is required", err)
		return 0, false
	}
	return id, true
}

func (h *LectureHandler) handleCreateError(c *gin.Context, err error) {
	var verr validator.ValidationError
	if errors.As(err, &verr) {
		h.handleError(c, http.StatusBadRequest, verr.Message, err)
		return
	}
	h.handleError(c, http.StatusInternalServerError, "Failed to create lecture", err)
}

func (h *LectureHandler) handleError(c *gin.Context, status int, message string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		h.logger.Error(message, logger.Error(err))
	}
	c.JSON(status, ErrorResponse{
		Error:   errMsg,
		Message: message,
	})
}
