package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// runExtract calls the entity-extraction service once per chunk, fanned out
// across chunks with a concurrency cap. Mentions are flattened back in
// chunk order so their ordinals reflect first-seen order regardless of
// which extraction call finished first.
func (p *Pipeline) runExtract(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	chunks, err := p.chunkList(ctx, doc.ID)
	if err != nil {
		return err
	}

	perChunk := make([][]models.EntityMention, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentExtract)
	for i, chunk := range chunks {
		g.Go(func() error {
			raw, err := p.extractor.ExtractEntities(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			mentions := make([]models.EntityMention, 0, len(raw))
			for _, m := range raw {
				// Unrecognized types are dropped, not stored.
				entityType, ok := models.ParseEntityType(m.Type)
				if !ok {
					continue
				}
				mentions = append(mentions, models.EntityMention{
					ID:         uuid.New(),
					ChunkID:    chunk.ID,
					DocumentID: doc.ID,
					Text:       m.Text,
					Type:       entityType,
					Confidence: m.Confidence,
				})
			}
			perChunk[i] = mentions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []models.EntityMention
	for _, mentions := range perChunk {
		for _, m := range mentions {
			m.Ordinal = len(all)
			all = append(all, m)
		}
	}

	if err := p.ensureActive(ctx, doc.ID); err != nil {
		return err
	}
	if err := p.store.DeleteMentions(ctx, doc.ID); err != nil {
		return err
	}
	if len(all) > 0 {
		if err := p.store.InsertMentions(ctx, all); err != nil {
			return err
		}
	}
	p.stageMentionSet(ctx, doc.ID, all)

	p.logger.Info("Entities extracted",
		logger.String("documentId", doc.ID.String()),
		logger.Int("chunks", len(chunks)),
		logger.Int("mentions", len(all)),
	)
	return nil
}

func (p *Pipeline) stageMentionSet(ctx context.Context, docID uuid.UUID, mentions []models.EntityMention) {
	buf, err := json.Marshal(mentions)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cache.MentionSetKey(docID), string(buf), p.cfg.TTLs.MentionSet); err != nil {
		p.logger.Debug("Failed to stage mention set", logger.Error(err))
	}
}
