package resolver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

func newTestResolver() *Resolver {
	return New(DefaultConfig(), logger.NewTestLogger())
}

func mention(text string, entityType models.EntityType, ordinal int) models.EntityMention {
	return models.EntityMention{
		ID:         uuid.New(),
		DocumentID: uuid.Nil,
		ChunkID:    uuid.New(),
		Text:       text,
		Type:       entityType,
		Confidence: 0.9,
		Ordinal:    ordinal,
	}
}

func TestResolveExactAndCaseInsensitiveMatch(t *testing.T) {
	r := newTestResolver()
	docID := uuid.New()

	entities, assignment := r.Resolve(docID, []models.EntityMention{
		mention("Berlin", models.EntityLocation, 0),
		mention("berlin", models.EntityLocation, 1),
	})

	require.Len(t, entities, 1)
	assert.Equal(t, 2, entities[0].MentionCount)
	assert.Len(t, assignment, 2)
}

func TestResolvePersonInitials(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("J. Smith", models.EntityPerson, 0),
		mention("John Smith", models.EntityPerson, 1),
	})

	require.Len(t, entities, 1)
	assert.Equal(t, "John Smith", entities[0].Name, "longest text wins the canonical name")
	assert.Equal(t, []string{"J. Smith", "John Smith"}, entities[0].Aliases)
}

func TestResolvePersonDifferentSurnamesStaySeparate(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("J. Smith", models.EntityPerson, 0),
		mention("J. Smythe-Jones", models.EntityPerson, 1),
	})

	assert.Len(t, entities, 2)
}

func TestResolveOrgAbbreviationTransitiveMerge(t *testing.T) {
	r := newTestResolver()

	entities, assignment := r.Resolve(uuid.New(), []models.EntityMention{
		mention("ACME", models.EntityOrg, 0),
		mention("Acme Corp.", models.EntityOrg, 1),
		mention("Acme Corporation", models.EntityOrg, 2),
	})

	require.Len(t, entities, 1, "transitive matches collapse into one entity")
	entity := entities[0]
	assert.Equal(t, "Acme Corporation", entity.Name)
	assert.Equal(t, 3, entity.MentionCount)
	assert.Equal(t, []string{"ACME", "Acme Corp.", "Acme Corporation"}, entity.Aliases)
	assert.InDelta(t, 0.8, entity.Confidence, 1e-9, "merged groups carry reduced confidence")

	canonical := entity.ID
	for _, id := range assignment {
		assert.Equal(t, canonical, id)
	}
}

func TestResolveNearDuplicateSpelling(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("Jonathan Smithers", models.EntityPerson, 0),
		mention("Jonathon Smithers", models.EntityPerson, 1),
	})

	assert.Len(t, entities, 1, "one-letter variants clear the similarity threshold")
}

func TestResolveTypesNeverCrossMerge(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("Washington", models.EntityPerson, 0),
		mention("Washington", models.EntityLocation, 1),
	})

	assert.Len(t, entities, 2, "identical text in different types stays separate")
}

func TestResolveSingletonConfidence(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("March 3, 2021", models.EntityDate, 0),
	})

	require.Len(t, entities, 1)
	assert.InDelta(t, 1.0, entities[0].Confidence, 1e-9)
	assert.Equal(t, 1, entities[0].MentionCount)
}

func TestResolveIdenticalMentionsCarryMergedConfidence(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("Berlin", models.EntityLocation, 0),
		mention("Berlin", models.EntityLocation, 1),
	})

	require.Len(t, entities, 1)
	assert.Equal(t, 2, entities[0].MentionCount)
	assert.Equal(t, []string{"Berlin"}, entities[0].Aliases)
	assert.InDelta(t, 0.8, entities[0].Confidence, 1e-9, "any multi-mention group is below full confidence")
}

func TestResolveEmptyInput(t *testing.T) {
	r := newTestResolver()

	entities, assignment := r.Resolve(uuid.New(), nil)
	assert.Empty(t, entities)
	assert.Empty(t, assignment)
}

func TestResolveDeterministicAcrossInputOrder(t *testing.T) {
	r := newTestResolver()
	docID := uuid.New()

	ms := []models.EntityMention{
		mention("Acme Corp", models.EntityOrg, 0),
		mention("Zenith Ltd", models.EntityOrg, 1),
		mention("Acme Corporation", models.EntityOrg, 2),
		mention("J. Smith", models.EntityPerson, 3),
		mention("John Smith", models.EntityPerson, 4),
	}
	reversed := []models.EntityMention{ms[4], ms[3], ms[2], ms[1], ms[0]}

	first, _ := r.Resolve(docID, ms)
	second, _ := r.Resolve(docID, reversed)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name, "ordinal sort makes slice order irrelevant")
		assert.Equal(t, first[i].Aliases, second[i].Aliases)
	}
}

func TestResolveCanonicalNameTieBreaksFirstSeen(t *testing.T) {
	r := newTestResolver()

	entities, _ := r.Resolve(uuid.New(), []models.EntityMention{
		mention("Jon Smith", models.EntityPerson, 0),
		mention("Jan Smith", models.EntityPerson, 1),
	})

	// equal lengths within the similarity threshold: the first seen wins.
	require.Len(t, entities, 1)
	assert.Equal(t, "Jon Smith", entities[0].Name)
}
