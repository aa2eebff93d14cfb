package temporal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/extract"
	"github.com/efebarandurmaz/hrrag/internal/graph"
	"github.com/efebarandurmaz/hrrag/internal/vector"
	"github.com/efebarandurmaz/hrrag/internal/vector/memory"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func activityEnv() *testsuite.TestActivityEnvironment {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(ExtractActivity)
	env.RegisterActivity(ChunkActivity)
	env.RegisterActivity(IndexActivity)
	return env
}

func TestExtractActivity_MissingPDF(t *testing.T) {
	SetDependencies(nil)
	_, err := activityEnv().ExecuteActivity(ExtractActivity, IngestionInput{
		PDFPath: filepath.Join(t.TempDir(), "absent.pdf"),
		WorkDir: t.TempDir(),
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected an application error, got %T", err)
	require.True(t, appErr.NonRetryable())
	require.Equal(t, ErrTypeInvalidInput, appErr.Type())
}

func TestChunkActivity(t *testing.T) {
	dir := t.TempDir()
	pagesPath := filepath.Join(dir, "pages.json")
	require.NoError(t, extract.WritePages(pagesPath, []chunker.Page{
		{Page: 1, Text: "Employees accrue fifteen vacation days per year."},
		{Page: 2, Text: "   "},
		{Page: 3, Text: "Sick leave requires a note."},
	}))

	val, err := activityEnv().ExecuteActivity(ChunkActivity, IngestionInput{WorkDir: dir}, pagesPath)
	require.NoError(t, err)

	var res ChunkResult
	require.NoError(t, val.Get(&res))
	require.Equal(t, 2, res.Chunks)
	require.Equal(t, filepath.Join(dir, chunksFile), res.ChunksPath)

	chunks, err := extract.ReadChunks(res.ChunksPath)
	require.NoError(t, err)
	require.Equal(t, chunker.ChunkID(1, 0, 48), chunks[0].ChunkID)
}

func TestChunkActivity_BadParameters(t *testing.T) {
	dir := t.TempDir()
	pagesPath := filepath.Join(dir, "pages.json")
	require.NoError(t, extract.WritePages(pagesPath, []chunker.Page{{Page: 1, Text: "x"}}))

	_, err := activityEnv().ExecuteActivity(ChunkActivity, IngestionInput{WorkDir: dir, MaxChars: 10, Overlap: 10}, pagesPath)
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.True(t, appErr.NonRetryable())
}

func TestIndexActivity(t *testing.T) {
	dir := t.TempDir()
	chunks := []chunker.Chunk{
		{ChunkID: "a1", Page: 1, Start: 0, End: 10, Text: "vacation days"},
		{ChunkID: "b2", Page: 1, Start: 8, End: 20, Text: "sick leave"},
	}
	chunksPath := filepath.Join(dir, chunksFile)
	require.NoError(t, extract.WriteChunks(chunksPath, chunks))

	store := memory.New()
	lineage := graph.NewMemory()
	indexDir := filepath.Join(dir, "index")
	SetDependencies(&Dependencies{
		Indexer:  vector.NewIndexer(fakeEmbedder{}, store, 0),
		Store:    store,
		IndexDir: indexDir,
		Lineage:  lineage,
	})
	t.Cleanup(func() { SetDependencies(nil) })

	val, err := activityEnv().ExecuteActivity(IndexActivity, IngestionInput{PDFPath: "hr_policy.pdf"}, chunksPath)
	require.NoError(t, err)

	var res IndexResult
	require.NoError(t, val.Get(&res))
	require.Equal(t, IndexResult{Indexed: 2, IndexDir: indexDir}, res)

	for _, f := range []string{memory.MetaFile, memory.EmbeddingsFile} {
		_, err := os.Stat(filepath.Join(indexDir, f))
		require.NoError(t, err, f)
	}

	l, err := lineage.GetChunk(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "hr_policy.pdf", l.Document)
	require.Equal(t, "b2", l.Next)
}

func TestIndexActivity_NoDependencies(t *testing.T) {
	SetDependencies(nil)
	dir := t.TempDir()
	chunksPath := filepath.Join(dir, chunksFile)
	require.NoError(t, extract.WriteChunks(chunksPath, nil))

	_, err := activityEnv().ExecuteActivity(IndexActivity, IngestionInput{}, chunksPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dependencies not configured")
}
