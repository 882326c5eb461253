package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint, e.g. (document, stage) or (document, chunk index).
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrVersionConflict is returned when an update loses an optimistic
	// concurrency race; callers re-read and retry.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the durable datastore behind the pipeline: documents, chunks,
// mentions, canonical entities, relationship stubs and stage task records.
// Implementations must make each method atomic and enforce the uniqueness
// constraints server-side as a backstop against duplicate-trigger races.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	// UpdateDocument persists doc if its Version still matches the stored
	// row, then bumps the version. ErrVersionConflict otherwise.
	UpdateDocument(ctx context.Context, doc *models.Document) error

	UpsertStageTask(ctx context.Context, rec *models.StageTaskRecord) error
	GetStageTask(ctx context.Context, docID uuid.UUID, stage models.Stage) (*models.StageTaskRecord, error)
	ListStageTasks(ctx context.Context, docID uuid.UUID) ([]models.StageTaskRecord, error)
	DeleteStageTask(ctx context.Context, docID uuid.UUID, stage models.Stage) error

	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	ListChunks(ctx context.Context, docID uuid.UUID) ([]models.Chunk, error)
	DeleteChunks(ctx context.Context, docID uuid.UUID) error

	InsertMentions(ctx context.Context, mentions []models.EntityMention) error
	ListMentions(ctx context.Context, docID uuid.UUID) ([]models.EntityMention, error)
	DeleteMentions(ctx context.Context, docID uuid.UUID) error
	// AssignCanonicals sets the canonical id on each given mention and
	// clears it on every other mention of the document.
	AssignCanonicals(ctx context.Context, docID uuid.UUID, assignment map[uuid.UUID]uuid.UUID) error

	InsertEntities(ctx context.Context, entities []models.CanonicalEntity) error
	ListEntities(ctx context.Context, docID uuid.UUID) ([]models.CanonicalEntity, error)
	DeleteEntities(ctx context.Context, docID uuid.UUID) error

	InsertRelationships(ctx context.Context, stubs []models.RelationshipStub) error
	ListRelationships(ctx context.Context, docID uuid.UUID) ([]models.RelationshipStub, error)
	DeleteRelationships(ctx context.Context, docID uuid.UUID) error

	Close() error
}
