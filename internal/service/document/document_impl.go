package document

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/pipeline"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/internal/utils/validator"
	"github.com/joeott/docpipeline/pkg/logger"
	"github.com/joeott/docpipeline/pkg/storage"
)

// ErrInvalidUpload wraps validation failures so handlers can map them to 400.
type ErrInvalidUpload struct {
	Errors []validator.ValidationError
}

func (e *ErrInvalidUpload) Error() string {
	if len(e.Errors) == 0 {
		return "invalid upload"
	}
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Message
	}
	return "invalid upload: " + strings.Join(msgs, "; ")
}

type documentService struct {
	store     store.Store
	blobs     storage.Storage
	pipeline  *pipeline.Pipeline
	validator *validator.DocumentValidator
	logger    logger.Logger
}

// NewService wires the document service.
func NewService(
	st store.Store,
	blobs storage.Storage,
	p *pipeline.Pipeline,
	v *validator.DocumentValidator,
	log logger.Logger,
) Service {
	return &documentService{
		store:     st,
		blobs:     blobs,
		pipeline:  p,
		validator: v,
		logger:    log.Named("document"),
	}
}

func (s *documentService) Submit(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.Document, error) {
	result, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, fmt.Errorf("failed to validate upload: %w", err)
	}
	if !result.IsValid {
		return nil, &ErrInvalidUpload{Errors: result.Errors}
	}

	doc := models.NewDocument("", header.Filename)
	key := fmt.Sprintf("uploads/%s%s", doc.ID, result.FileInfo.Extension)

	if _, err := s.blobs.Store(ctx, file, key); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	doc.SourceRef = key

	if err := s.pipeline.Start(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload",
				logger.String("key", key),
				logger.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Document submitted",
		logger.String("documentId", doc.ID.String()),
		logger.String("filename", header.Filename),
		logger.String("hash", result.FileInfo.Hash),
	)
	return doc, nil
}

func (s *documentService) Status(ctx context.Context, docID uuid.UUID) (*pipeline.StatusReport, error) {
	return s.pipeline.Status(ctx, docID)
}

func (s *documentService) Entities(ctx context.Context, docID uuid.UUID) (*EntityReport, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	entities, err := s.store.ListEntities(ctx, docID)
	if err != nil {
		return nil, err
	}
	mentions, err := s.store.ListMentions(ctx, docID)
	if err != nil {
		return nil, err
	}
	relationships, err := s.store.ListRelationships(ctx, docID)
	if err != nil {
		return nil, err
	}

	return &EntityReport{
		DocumentID:    docID,
		Entities:      entities,
		Mentions:      mentions,
		Relationships: relationships,
	}, nil
}

func (s *documentService) Cancel(ctx context.Context, docID uuid.UUID) error {
	return s.pipeline.Cancel(ctx, docID)
}

func (s *documentService) Reprocess(ctx context.Context, docID uuid.UUID, from models.Stage) error {
	return s.pipeline.Reprocess(ctx, docID, from)
}
