package extract

import "context"

// Mention is one typed span returned by the extraction service, before the
// pipeline filters it down to the supported entity types.
type Mention struct {
	Text       string
	Type       string
	Confidence float64
}

// Extractor is the synchronous entity-extraction contract: chunk text in,
// typed spans out. Unrecognized types are dropped by the caller, not here.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Mention, error)
}
