package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/cache"
	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// runChunk splits the extracted text into ordered chunks. Index assignment
// is sequential within the document; it is never parallelized.
func (p *Pipeline) runChunk(ctx context.Context, doc *models.Document, rec *models.StageTaskRecord) error {
	text, err := p.ocrText(ctx, doc.ID)
	if err != nil {
		return err
	}

	chunks, err := p.chunker.Split(doc.ID, text)
	if err != nil {
		return Permanent(fmt.Errorf("failed to chunk document: %w", err))
	}

	if err := p.ensureActive(ctx, doc.ID); err != nil {
		return err
	}
	// An earlier crashed attempt may have left partial rows; this stage
	// owns the chunk table for the document, so clearing is safe.
	if err := p.store.DeleteChunks(ctx, doc.ID); err != nil {
		return err
	}
	if len(chunks) > 0 {
		if err := p.store.InsertChunks(ctx, chunks); err != nil {
			return err
		}
	}
	p.stageChunkList(ctx, doc.ID, chunks)

	p.logger.Info("Document chunked",
		logger.String("documentId", doc.ID.String()),
		logger.Int("chunks", len(chunks)),
	)
	return nil
}

// stageChunkList caches the chunk list so a retried extract stage skips the
// datastore read. Best effort; losing it only costs a re-read.
func (p *Pipeline) stageChunkList(ctx context.Context, docID uuid.UUID, chunks []models.Chunk) {
	buf, err := json.Marshal(chunks)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cache.ChunkListKey(docID), string(buf), p.cfg.TTLs.ChunkList); err != nil {
		p.logger.Debug("Failed to stage chunk list", logger.Error(err))
	}
}

// chunkList loads the document's chunks, preferring the staged copy.
func (p *Pipeline) chunkList(ctx context.Context, docID uuid.UUID) ([]models.Chunk, error) {
	if raw, ok, err := p.cache.Get(ctx, cache.ChunkListKey(docID)); err == nil && ok {
		var chunks []models.Chunk
		if err := json.Unmarshal([]byte(raw), &chunks); err == nil {
			return chunks, nil
		}
	}
	return p.store.ListChunks(ctx, docID)
}
