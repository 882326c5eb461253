package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/pipeline"
	"github.com/joeott/docpipeline/internal/service/document"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
)

type DocumentHandler struct {
	service document.Service
	logger  logger.Logger
}

// SubmitResponse is returned on a successful upload.
type SubmitResponse struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"fileSize"`
	CreatedAt  string `json:"createdAt"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewDocumentHandler(service document.Service, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log,
	}
}

// SubmitDocument accepts a multipart upload and starts its pipeline run.
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	doc, err := h.service.Submit(c.Request.Context(), file, header)
	if err != nil {
		var invalid *document.ErrInvalidUpload
		if errors.As(err, &invalid) {
			h.handleError(c, http.StatusBadRequest, "Upload rejected", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to submit document", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		DocumentID: doc.ID.String(),
		Status:     string(doc.Status),
		Filename:   header.Filename,
		FileSize:   header.Size,
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
	})
}

// GetStatus returns the document plus its per-stage task records.
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	report, err := h.service.Status(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Document not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetEntities returns the extraction output for a document.
func (h *DocumentHandler) GetEntities(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	report, err := h.service.Entities(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Document not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get entities", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// CancelDocument marks a document cancelled.
func (h *DocumentHandler) CancelDocument(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), docID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.handleError(c, http.StatusNotFound, "Document not found", err)
		case errors.Is(err, pipeline.ErrTerminal):
			h.handleError(c, http.StatusConflict, "Document already finished", err)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to cancel document", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Document cancelled",
		"documentId": docID.String(),
	})
}

// ReprocessDocument re-runs a terminal document from a given stage.
// The stage comes from the "from" query parameter and defaults to ocr.
func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	docID, ok := h.documentID(c)
	if !ok {
		return
	}

	from := models.StageOCR
	if name := c.Query("from"); name != "" {
		stage, err := models.ParseStage(name)
		if err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid stage", err)
			return
		}
		from = stage
	}

	if err := h.service.Reprocess(c.Request.Context(), docID, from); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.handleError(c, http.StatusNotFound, "Document not found", err)
		case errors.Is(err, pipeline.ErrNotTerminal):
			h.handleError(c, http.StatusConflict, "Document still processing", err)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to reprocess document", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Document reprocessing",
		"documentId": docID.String(),
		"fromStage":  string(from),
	})
}

func (h *DocumentHandler) documentID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("documentId")
	docID, err := uuid.Parse(raw)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid document ID", err)
		return uuid.Nil, false
	}
	return docID, true
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}
