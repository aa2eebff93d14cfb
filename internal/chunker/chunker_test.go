package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"crlf", "a\r\nb", "a b"},
		{"blank lines", "Leave\n\n\n\nPolicy", "Leave Policy"},
		{"tabs and spaces", "  one\t\t two   three ", "one two three"},
		{"empty", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestChunkID(t *testing.T) {
	sum := sha1.Sum([]byte("p3_s0_e1200"))
	want := hex.EncodeToString(sum[:])[:10]

	assert.Equal(t, want, ChunkID(3, 0, 1200))
	assert.Len(t, ChunkID(1, 5, 9), 10)
	assert.NotEqual(t, ChunkID(1, 0, 10), ChunkID(2, 0, 10))
}

func TestChunkPage_Windows(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := ChunkPage(1, text, 1200, 200)

	require.Len(t, chunks, 3)
	assert.Equal(t, [2]int{0, 1200}, [2]int{chunks[0].Start, chunks[0].End})
	assert.Equal(t, [2]int{1000, 2200}, [2]int{chunks[1].Start, chunks[1].End})
	assert.Equal(t, [2]int{2000, 2500}, [2]int{chunks[2].Start, chunks[2].End})
	for _, c := range chunks {
		assert.Equal(t, 1, c.Page)
		assert.Equal(t, ChunkID(1, c.Start, c.End), c.ChunkID)
	}
}

func TestChunkPage_ShortText(t *testing.T) {
	chunks := ChunkPage(2, "Annual leave is 15 days.", 1200, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 24, chunks[0].End)
	assert.Equal(t, "Annual leave is 15 days.", chunks[0].Text)
}

func TestChunkPage_RuneOffsets(t *testing.T) {
	text := strings.Repeat("ü", 15)
	chunks := ChunkPage(1, text, 10, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, 10, chunks[0].End)
	assert.Equal(t, 8, chunks[1].Start)
	assert.Equal(t, 15, chunks[1].End)
	assert.Equal(t, strings.Repeat("ü", 7), chunks[1].Text)
}

func TestChunkPage_Empty(t *testing.T) {
	assert.Empty(t, ChunkPage(1, "", 1200, 200))
}

func TestChunkPage_DropsBlankWindows(t *testing.T) {
	// The second window is all spaces and is dropped after trimming.
	text := "abcde" + strings.Repeat(" ", 10)
	chunks := ChunkPage(1, text, 5, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "abcde", chunks[0].Text)
}

func TestChunkPages(t *testing.T) {
	pages := []Page{
		{Page: 1, Text: "Section 1\r\n\r\nAnnual leave"},
		{Page: 2, Text: "   "},
		{Page: 3, Text: "Sick leave\tpolicy"},
	}
	chunks, err := ChunkPages(pages, DefaultMaxChars, DefaultOverlap)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Section 1 Annual leave", chunks[0].Text)
	assert.Equal(t, 3, chunks[1].Page)
	assert.Equal(t, "Sick leave policy", chunks[1].Text)
}

func TestChunkPages_Deterministic(t *testing.T) {
	pages := []Page{{Page: 1, Text: strings.Repeat("policy text ", 300)}}
	a, err := ChunkPages(pages, 500, 50)
	require.NoError(t, err)
	b, err := ChunkPages(pages, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChunkPages_InvalidParams(t *testing.T) {
	_, err := ChunkPages(nil, 100, 100)
	assert.Error(t, err)
	_, err = ChunkPages(nil, 0, 0)
	assert.Error(t, err)
	_, err = ChunkPages(nil, 100, -1)
	assert.Error(t, err)
}
