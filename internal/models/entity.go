package models

import (
	"strings"

	"github.com/google/uuid"
)

// EntityType enumerates the mention types the pipeline stores. Anything
// else coming back from the extraction service is dropped at the boundary.
type EntityType string

const (
	EntityPerson   EntityType = "PERSON"
	EntityOrg      EntityType = "ORG"
	EntityLocation EntityType = "LOCATION"
	EntityDate     EntityType = "DATE"
)

// ParseEntityType maps an extraction-service type label onto a supported
// EntityType. The second return is false for unrecognized labels.
func ParseEntityType(label string) (EntityType, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PERSON":
		return EntityPerson, true
	case "ORG", "ORGANIZATION":
		return EntityOrg, true
	case "LOCATION", "GPE", "PLACE":
		return EntityLocation, true
	case "DATE":
		return EntityDate, true
	}
	return "", false
}

// Chunk is one ordered slice of a document's OCR text. Chunks are created
// once by the chunk stage and immutable afterward; indices are contiguous
// from 0 and character ranges never overlap.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"documentId"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	CharStart  int       `json:"charStart"`
	CharEnd    int       `json:"charEnd"`
}

// EntityMention is a raw typed span found by the extraction service in one
// chunk. CanonicalID is nil until resolution assigns it.
type EntityMention struct {
	ID          uuid.UUID  `json:"id"`
	ChunkID     uuid.UUID  `json:"chunkId"`
	DocumentID  uuid.UUID  `json:"documentId"`
	Text        string     `json:"text"`
	Type        EntityType `json:"entityType"`
	Confidence  float64    `json:"confidence"`
	CanonicalID *uuid.UUID `json:"canonicalId,omitempty"`

	// Ordinal is the document-wide first-seen position of the mention
	// (chunk order, then offset order within the chunk). Resolution relies
	// on it for deterministic tie-breaking.
	Ordinal int `json:"ordinal"`
}

// CanonicalEntity is the deduplicated representative of one or more
// mentions referring to the same real-world thing. Regenerated wholesale
// when a document is reprocessed.
type CanonicalEntity struct {
	ID           uuid.UUID  `json:"id"`
	DocumentID   uuid.UUID  `json:"documentId"`
	Name         string     `json:"name"`
	Type         EntityType `json:"entityType"`
	Aliases      []string   `json:"aliases"`
	MentionCount int        `json:"mentionCount"`
	Confidence   float64    `json:"confidence"`
}

// RelationshipType enumerates the structural edges the relate stage emits.
type RelationshipType string

const (
	RelHasChunk   RelationshipType = "HAS_CHUNK"
	RelNextChunk  RelationshipType = "NEXT_CHUNK"
	RelMentions   RelationshipType = "MENTIONS"
	RelResolvesTo RelationshipType = "RESOLVES_TO"
)

// RelationshipStub is a structural edge derived from the resolved data
// model, the terminal artifact handed to downstream graph loaders.
type RelationshipStub struct {
	ID         uuid.UUID        `json:"id"`
	DocumentID uuid.UUID        `json:"documentId"`
	FromID     uuid.UUID        `json:"fromId"`
	ToID       uuid.UUID        `json:"toId"`
	Type       RelationshipType `json:"relationshipType"`
}
