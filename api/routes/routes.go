package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joeott/docpipeline/api/handlers"
	"github.com/joeott/docpipeline/api/middleware"
)

// SetupRoutes configures all routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handlers.HealthCheck)

	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.SubmitDocument)
		docs.GET("/:documentId", h.Document.GetStatus)
		docs.GET("/:documentId/entities", h.Document.GetEntities)
		docs.POST("/:documentId/cancel", h.Document.CancelDocument)
		docs.POST("/:documentId/reprocess", h.Document.ReprocessDocument)
	}
}
