package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/joeott/docpipeline/internal/models"
)

// Chunker splits OCR text into ordered, non-overlapping chunks with
// character offsets into the source text. Splitting is sequential per
// document so index assignment stays contiguous from 0.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New builds a chunker targeting chunkSize characters per chunk. Overlap is
// always zero: chunk character ranges must never overlap.
func New(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(0),
		),
	}
}

// Split chunks text for a document. Empty or whitespace-only text yields
// zero chunks, which is a legitimate (not error) outcome.
func (c *Chunker) Split(docID uuid.UUID, text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	// The splitter trims separators, so each piece is located back in the
	// source text to recover exact character offsets. Searching from the
	// previous chunk's end keeps ranges monotonically increasing.
	chunks := make([]models.Chunk, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		if piece == "" {
			continue
		}
		rel := strings.Index(text[cursor:], piece)
		if rel < 0 {
			return nil, fmt.Errorf("chunk %d not found in source text", i)
		}
		start := cursor + rel
		end := start + len(piece)
		chunks = append(chunks, models.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			Index:      len(chunks),
			Text:       piece,
			CharStart:  start,
			CharEnd:    end,
		})
		cursor = end
	}
	return chunks, nil
}
