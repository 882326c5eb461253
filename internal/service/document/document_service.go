package document

import (
	"context"
	"mime/multipart"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/pipeline"
)

// EntityReport is the extraction output for a document: canonical entities
// with their aliases, the raw mentions, and the relationship stubs.
type EntityReport struct {
	DocumentID    uuid.UUID                `json:"documentId"`
	Entities      []models.CanonicalEntity `json:"entities"`
	Mentions      []models.EntityMention   `json:"mentions"`
	Relationships []models.RelationshipStub `json:"relationships"`
}

// Service is the control surface behind the HTTP handlers.
type Service interface {
	// Submit validates and stores an upload, then starts its pipeline run.
	Submit(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.Document, error)
	// Status reports the document plus its per-stage task records.
	Status(ctx context.Context, docID uuid.UUID) (*pipeline.StatusReport, error)
	// Entities returns the extraction output for a document.
	Entities(ctx context.Context, docID uuid.UUID) (*EntityReport, error)
	// Cancel marks a document cancelled.
	Cancel(ctx context.Context, docID uuid.UUID) error
	// Reprocess re-runs a terminal document from the given stage.
	Reprocess(ctx context.Context, docID uuid.UUID, from models.Stage) error
}
