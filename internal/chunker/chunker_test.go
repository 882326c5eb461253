package chunker

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	c := New(100)

	chunks, err := c.Split(uuid.New(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.Split(uuid.New(), "   \n\t ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := New(1000)
	docID := uuid.New()
	text := "A single paragraph that fits in one chunk."

	chunks, err := c.Split(docID, text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, docID, chunks[0].DocumentID)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, len(text), chunks[0].CharEnd)
}

func TestSplitIndicesContiguousAndRangesOrdered(t *testing.T) {
	c := New(80)
	docID := uuid.New()

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("Paragraph about entity resolution and document pipelines.\n\n")
	}
	text := sb.String()

	chunks, err := c.Split(docID, text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "indices are contiguous from zero")
		assert.Less(t, chunk.CharStart, chunk.CharEnd)
		assert.Equal(t, text[chunk.CharStart:chunk.CharEnd], chunk.Text, "offsets point at the chunk text")
		if i > 0 {
			assert.GreaterOrEqual(t, chunk.CharStart, chunks[i-1].CharEnd, "ranges never overlap")
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := New(120)
	docID := uuid.New()
	text := strings.Repeat("Alpha beta gamma delta epsilon zeta.\n", 40)

	first, err := c.Split(docID, text)
	require.NoError(t, err)
	second, err := c.Split(docID, text)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].CharStart, second[i].CharStart)
		assert.Equal(t, first[i].CharEnd, second[i].CharEnd)
	}
}
