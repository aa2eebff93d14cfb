package memory

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

func item(id string, page int, emb ...float32) vector.Item {
	return vector.Item{
		Chunk:     chunker.Chunk{ChunkID: id, Page: page, Text: "text " + id},
		Embedding: emb,
	}
}

func seeded(t *testing.T) *Index {
	t.Helper()
	ix := New()
	require.NoError(t, ix.Upsert(context.Background(), []vector.Item{
		item("a", 1, 1, 0, 0),
		item("b", 2, 0, 1, 0),
		item("c", 3, 1, 1, 0),
	}))
	return ix
}

func TestSearch_Order(t *testing.T) {
	ix := seeded(t)
	got, err := ix.Search(context.Background(), []float32{2, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "c", got[1].ChunkID)
	assert.InDelta(t, 1/math.Sqrt2, got[1].Score, 1e-6)
	assert.Equal(t, 2, got[1].Idx)
	assert.Equal(t, 3, got[1].Page)
	assert.Len(t, got[1].Embedding, 3)
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	ix := seeded(t)
	got, err := ix.Search(context.Background(), []float32{0, 1, 0}, 20)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSearch_Empty(t *testing.T) {
	got, err := New().Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix := seeded(t)
	_, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestUpsert_ReplacesByID(t *testing.T) {
	ix := seeded(t)
	require.NoError(t, ix.Upsert(context.Background(), []vector.Item{item("a", 9, 0, 0, 1)}))

	size, _ := ix.Size(context.Background())
	assert.Equal(t, 3, size)

	got, err := ix.Search(context.Background(), []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, 9, got[0].Page)
}

func TestUpsert_RejectsDimensionChange(t *testing.T) {
	ix := seeded(t)
	err := ix.Upsert(context.Background(), []vector.Item{item("d", 1, 1, 0)})
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	ix := seeded(t)
	require.NoError(t, ix.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ix.Chunks(), loaded.Chunks())

	got, err := loaded.Search(context.Background(), []float32{1, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestLoad_RowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, seeded(t).Save(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), []byte(`[{"chunk_id":"a","page":1,"start":0,"end":1,"text":"x"}]`), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestNPY_HeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeNPY(&buf, [][]float32{{1, 2}, {3, 4}, {5, 6}}, 2))

	data := buf.Bytes()
	assert.Equal(t, "\x93NUMPY", string(data[:6]))
	assert.Equal(t, []byte{1, 0}, data[6:8])
	headerLen := int(data[8]) | int(data[9])<<8
	assert.Equal(t, 0, (10+headerLen)%64, "data must start on a 64-byte boundary")
	assert.Equal(t, byte('\n'), data[10+headerLen-1])
	assert.Contains(t, string(data[10:10+headerLen]), "'shape': (3, 2)")
	assert.Len(t, data, 10+headerLen+3*2*4)

	rows, err := readNPY(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, rows)
}

func TestNPY_RejectsOtherDtypes(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 1), }"
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"
	data := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
	data = append(data, header...)
	data = append(data, make([]byte, 8)...)

	_, err := readNPY(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestNPY_NotNPY(t *testing.T) {
	_, err := readNPY(bytes.NewReader([]byte("definitely not numpy")))
	assert.Error(t, err)
}
