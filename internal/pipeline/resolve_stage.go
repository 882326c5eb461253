package pipeline

import (
	"context"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// runResolve consolidates the document's mentions into canonical entities.
// Zero mentions is a legitimate outcome: the stage completes with zero
// canonical entities rather than failing.
func (p *Pipeline) runResolve(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	mentions, err := p.store.ListMentions(ctx, doc.ID)
	if err != nil {
		return err
	}

	entities, assignment := p.resolver.Resolve(doc.ID, mentions)

	if err := p.ensureActive(ctx, doc.ID); err != nil {
		return err
	}
	// Canonical entities are regenerated wholesale; invalidate any prior
	// generation before writing the new one.
	if err := p.store.DeleteEntities(ctx, doc.ID); err != nil {
		return err
	}
	if len(entities) > 0 {
		if err := p.store.InsertEntities(ctx, entities); err != nil {
			return err
		}
	}
	if err := p.store.AssignCanonicals(ctx, doc.ID, assignment); err != nil {
		return err
	}

	p.logger.Info("Entities resolved",
		logger.String("documentId", doc.ID.String()),
		logger.Int("mentions", len(mentions)),
		logger.Int("entities", len(entities)),
	)
	return nil
}
