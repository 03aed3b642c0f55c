package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-rag/internal/models"
)

// rebuild joins chunks back together by dropping the shared overlap.
func rebuild(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestSplitCoversInput(t *testing.T) {
	words := strings.Fields(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200))
	texts := map[string]string{
		"prose":     strings.Join(words, " "),
		"no breaks": strings.Repeat("x", 5321),
		"unicode":   strings.Repeat("événement données ", 400),
		"paragraphs": strings.Repeat("line one\nline two\n\n", 300),
	}

	c := New()
	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			chunks := c.Split(text)
			require.NotEmpty(t, chunks)
			for _, ch := range chunks {
				assert.NotEmpty(t, ch)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), DefaultChunkSize)
			}
			assert.Equal(t, text, rebuild(chunks, DefaultChunkOverlap))
		})
	}
}

func TestSplitShortAndEmpty(t *testing.T) {
	c := New()
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("  \n\t"))
	assert.Equal(t, []string{"short text"}, c.Split("short text"))
}

func TestSplitBreakPreference(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(10))

	t.Run("paragraph", func(t *testing.T) {
		text := strings.Repeat("a", 60) + ". " + strings.Repeat("a", 8) + "\n\n" + strings.Repeat("b", 100)
		chunks := c.Split(text)
		require.Greater(t, len(chunks), 1)
		assert.True(t, strings.HasSuffix(chunks[0], "\n\n"))
	})

	t.Run("sentence", func(t *testing.T) {
		text := strings.Repeat("a ", 30) + "end. " + strings.Repeat("b", 100)
		chunks := c.Split(text)
		require.Greater(t, len(chunks), 1)
		assert.True(t, strings.HasSuffix(chunks[0], "end. "))
	})

	t.Run("hard cut", func(t *testing.T) {
		chunks := c.Split(strings.Repeat("z", 250))
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], 100)
		assert.Len(t, chunks[1], 100)
		assert.Len(t, chunks[2], 70)
	})
}

func TestNewClampsOverlap(t *testing.T) {
	c := New(WithChunkSize(40), WithOverlap(40))
	assert.Equal(t, 10, c.overlap)

	c = New(WithChunkSize(-1), WithOverlap(-5))
	assert.Equal(t, DefaultChunkSize, c.size)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)
}

func TestChunkCopiesMetadata(t *testing.T) {
	c := New(WithChunkSize(50), WithOverlap(5))
	records := []models.Record{
		{Content: strings.Repeat("word ", 40), Metadata: map[string]any{"source": "a.txt"}},
		{Content: "", Metadata: map[string]any{"source": "empty.txt"}},
		{Content: "tail", Metadata: map[string]any{"source": "b.txt"}},
	}

	chunks := c.Chunk(records)
	require.Greater(t, len(chunks), 2)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "tail", last.Content)
	assert.Equal(t, "b.txt", last.Source())

	chunks[0].Metadata["source"] = "changed"
	assert.Equal(t, "a.txt", chunks[1].Source())
	assert.Equal(t, "a.txt", records[0].Source())
}
