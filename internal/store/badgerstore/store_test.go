package badgerstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", true, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := models.NewDocument("uploads/a.pdf", "a.pdf")
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = s.GetDocument(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateDocumentDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := models.NewDocument("uploads/a.pdf", "a.pdf")
	require.NoError(t, s.CreateDocument(ctx, doc))
	assert.ErrorIs(t, s.CreateDocument(ctx, doc), store.ErrDuplicate)
}

func TestUpdateDocumentOptimisticConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := models.NewDocument("uploads/a.pdf", "a.pdf")
	require.NoError(t, s.CreateDocument(ctx, doc))

	first, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	second, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)

	first.Status = models.StatusOCRSubmitted
	require.NoError(t, s.UpdateDocument(ctx, first))

	// second still carries the old version; its write must lose.
	second.Status = models.StatusCancelled
	assert.ErrorIs(t, s.UpdateDocument(ctx, second), store.ErrVersionConflict)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCRSubmitted, got.Status)
	assert.Greater(t, got.Version, int64(0))
}

func TestStageTaskUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New()

	// insert out of pipeline order; List must come back ordered.
	for _, stage := range []models.Stage{models.StageResolve, models.StageOCR, models.StageChunk} {
		require.NoError(t, s.UpsertStageTask(ctx, models.NewStageTaskRecord(docID, stage)))
	}

	recs, err := s.ListStageTasks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, models.StageOCR, recs[0].Stage)
	assert.Equal(t, models.StageChunk, recs[1].Stage)
	assert.Equal(t, models.StageResolve, recs[2].Stage)

	rec := recs[0]
	rec.Status = models.TaskCompleted
	rec.AttemptCount = 2
	require.NoError(t, s.UpsertStageTask(ctx, &rec))

	got, err := s.GetStageTask(ctx, docID, models.StageOCR)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, 2, got.AttemptCount)

	require.NoError(t, s.DeleteStageTask(ctx, docID, models.StageOCR))
	_, err = s.GetStageTask(ctx, docID, models.StageOCR)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChunkOrderingAndUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New()

	chunks := []models.Chunk{
		{ID: uuid.New(), DocumentID: docID, Index: 2, Text: "c"},
		{ID: uuid.New(), DocumentID: docID, Index: 0, Text: "a"},
		{ID: uuid.New(), DocumentID: docID, Index: 1, Text: "b"},
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	got, err := s.ListChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Index)
	}

	dup := []models.Chunk{{ID: uuid.New(), DocumentID: docID, Index: 1, Text: "x"}}
	assert.ErrorIs(t, s.InsertChunks(ctx, dup), store.ErrDuplicate)

	require.NoError(t, s.DeleteChunks(ctx, docID))
	got, err = s.ListChunks(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMentionOrderingByOrdinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New()

	mentions := []models.EntityMention{
		{ID: uuid.New(), DocumentID: docID, Text: "later", Type: models.EntityPerson, Ordinal: 5},
		{ID: uuid.New(), DocumentID: docID, Text: "first", Type: models.EntityPerson, Ordinal: 0},
	}
	require.NoError(t, s.InsertMentions(ctx, mentions))

	got, err := s.ListMentions(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "later", got[1].Text)
}

func TestAssignCanonicals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New()

	m1 := models.EntityMention{ID: uuid.New(), DocumentID: docID, Text: "a", Type: models.EntityPerson, Ordinal: 0}
	m2 := models.EntityMention{ID: uuid.New(), DocumentID: docID, Text: "b", Type: models.EntityPerson, Ordinal: 1}
	require.NoError(t, s.InsertMentions(ctx, []models.EntityMention{m1, m2}))

	canonical := uuid.New()
	require.NoError(t, s.AssignCanonicals(ctx, docID, map[uuid.UUID]uuid.UUID{m1.ID: canonical}))

	got, err := s.ListMentions(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, got[0].CanonicalID)
	assert.Equal(t, canonical, *got[0].CanonicalID)
	assert.Nil(t, got[1].CanonicalID, "unassigned mentions are cleared")

	// a nil assignment clears every mention.
	require.NoError(t, s.AssignCanonicals(ctx, docID, nil))
	got, err = s.ListMentions(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, got[0].CanonicalID)
	assert.Nil(t, got[1].CanonicalID)
}

func TestEntitiesAndRelationshipsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New()

	entities := []models.CanonicalEntity{
		{ID: uuid.New(), DocumentID: docID, Name: "Acme Corporation", Type: models.EntityOrg, MentionCount: 2, Confidence: 0.8},
	}
	require.NoError(t, s.InsertEntities(ctx, entities))

	stubs := []models.RelationshipStub{
		{ID: uuid.New(), DocumentID: docID, Type: models.RelHasChunk, FromID: docID, ToID: uuid.New()},
	}
	require.NoError(t, s.InsertRelationships(ctx, stubs))

	gotEnts, err := s.ListEntities(ctx, docID)
	require.NoError(t, err)
	require.Len(t, gotEnts, 1)
	assert.Equal(t, "Acme Corporation", gotEnts[0].Name)

	gotRels, err := s.ListRelationships(ctx, docID)
	require.NoError(t, err)
	require.Len(t, gotRels, 1)

	require.NoError(t, s.DeleteEntities(ctx, docID))
	require.NoError(t, s.DeleteRelationships(ctx, docID))

	gotEnts, err = s.ListEntities(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, gotEnts)
	gotRels, err = s.ListRelationships(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, gotRels)
}

func TestIsolationBetweenDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docA, docB := uuid.New(), uuid.New()

	require.NoError(t, s.InsertChunks(ctx, []models.Chunk{{ID: uuid.New(), DocumentID: docA, Index: 0, Text: "a"}}))
	require.NoError(t, s.InsertChunks(ctx, []models.Chunk{{ID: uuid.New(), DocumentID: docB, Index: 0, Text: "b"}}))

	require.NoError(t, s.DeleteChunks(ctx, docA))

	got, err := s.ListChunks(ctx, docB)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
