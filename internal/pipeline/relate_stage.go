package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// runRelate derives the structural edges already implied by the resolved
// data model and writes them as relationship stubs, the single artifact
// downstream graph loaders consume. No similarity work happens here; the
// only failure mode is storage.
func (p *Pipeline) runRelate(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	chunks, err := p.store.ListChunks(ctx, doc.ID)
	if err != nil {
		return err
	}
	mentions, err := p.store.ListMentions(ctx, doc.ID)
	if err != nil {
		return err
	}

	var stubs []models.RelationshipStub
	add := func(from, to uuid.UUID, relType models.RelationshipType) {
		stubs = append(stubs, models.RelationshipStub{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			FromID:     from,
			ToID:       to,
			Type:       relType,
		})
	}

	for i, chunk := range chunks {
		add(doc.ID, chunk.ID, models.RelHasChunk)
		if i+1 < len(chunks) {
			add(chunk.ID, chunks[i+1].ID, models.RelNextChunk)
		}
	}
	for _, m := range mentions {
		add(m.ChunkID, m.ID, models.RelMentions)
		if m.CanonicalID != nil {
			add(m.ID, *m.CanonicalID, models.RelResolvesTo)
		}
	}

	if err := p.ensureActive(ctx, doc.ID); err != nil {
		return err
	}
	if err := p.store.DeleteRelationships(ctx, doc.ID); err != nil {
		return err
	}
	if len(stubs) > 0 {
		if err := p.store.InsertRelationships(ctx, stubs); err != nil {
			return err
		}
	}

	p.logger.Info("Relationships staged",
		logger.String("documentId", doc.ID.String()),
		logger.Int("relationships", len(stubs)),
	)
	return nil
}
