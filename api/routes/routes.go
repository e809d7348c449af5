package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/lecturanote/lecture-processor/api/handlers"
	"github.com/lecturanote/lecture-processor/api/middleware"
)

// SetupRoutes wires all HTTP routes.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())
	r.Use(middleware.RequestID())

	v1 := r.Group("/api/v1")

	lectures := v1.Group("/lectures")
	{
		lectures.POST("", h.Lecture.Create)
		lectures.GET("/:lectureId/status", h.Lecture.Status)
		lectures.GET("/:lectureId/result", h.Lecture.Result)
		lectures.POST("/:lectureId/query", h.Lecture.Query)
	}
}
