package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joeott/docpipeline/internal/service/document"
	"github.com/joeott/docpipeline/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(
	documentService document.Service,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
