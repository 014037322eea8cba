package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	chunks := SplitText("a short abstract", 6000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short abstract", chunks[0])
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, SplitText("", 6000))
	assert.Nil(t, SplitText("   \n\n  ", 6000))
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 60)
	third := strings.Repeat("c", 60)
	text := first + "\n\n" + second + "\n\n" + third

	chunks := SplitText(text, 130)
	require.Len(t, chunks, 2)
	assert.Equal(t, first+"\n\n"+second, chunks[0])
	assert.Equal(t, third, chunks[1])
}

func TestSplitTextRespectsLimit(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 40; i++ {
		paragraphs = append(paragraphs, strings.Repeat("x", 500))
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := SplitText(text, DefaultChunkSize)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), DefaultChunkSize, "chunk %d over limit", i)
		assert.NotEmpty(t, chunk)
	}

	// No text lost.
	total := 0
	for _, chunk := range chunks {
		total += strings.Count(chunk, "x")
	}
	assert.Equal(t, 40*500, total)
}

func TestSplitTextHardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("y", 250)

	chunks := SplitText(text, 100)
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, 100, len(chunks[1]))
	assert.Equal(t, 50, len(chunks[2]))
}
