package rerank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/hrrag/internal/vector"
)

func TestBM25_Okapi(t *testing.T) {
	corpus := [][]string{
		{"annual", "leave", "days"},
		{"sick", "leave"},
		{"parental", "policy"},
	}
	scores := bm25(corpus, []string{"annual", "leave"})

	require.Len(t, scores, 3)
	assert.InDelta(t, 0.528069, scores[0], 1e-5)
	// "leave" appears in 2 of 3 documents: its negative idf is floored.
	assert.InDelta(t, 0.090987, scores[1], 1e-5)
	assert.Zero(t, scores[2])
}

func TestBM25_CaseSensitive(t *testing.T) {
	scores := bm25([][]string{{"Leave"}, {"other"}}, []string{"leave"})
	assert.Zero(t, scores[0])
}

func TestNormalizeMax(t *testing.T) {
	s := []float64{2, 1, 0}
	normalizeMax(s)
	assert.InDelta(t, 1.0, s[0], 1e-9)
	assert.InDelta(t, 0.5, s[1], 1e-9)

	zeros := []float64{0, 0}
	normalizeMax(zeros)
	assert.Equal(t, []float64{0, 0}, zeros)
}

func cand(id, text string, emb ...float32) vector.Candidate {
	return vector.Candidate{ChunkID: id, Text: text, Embedding: emb}
}

func TestRerank_Fusion(t *testing.T) {
	cands := []vector.Candidate{
		cand("c0", "parental policy", 1, 0),
		cand("c1", "annual leave days", 0, 1),
		cand("c2", "sick leave", 1, 1),
	}
	got := Rerank("annual leave", cands, []float32{1, 0}, 3, 0.6)
	require.Len(t, got, 3)

	byID := map[string]Ranked{}
	for _, r := range got {
		byID[r.ChunkID] = r
	}
	// c1 has the top BM25 score, normalized to ~1.
	assert.InDelta(t, 1.0, byID["c1"].BM25Score, 1e-9)
	assert.InDelta(t, 0.0, byID["c1"].CosineScore, 1e-9)
	assert.InDelta(t, 0.4, byID["c1"].CombinedScore, 1e-9)

	assert.InDelta(t, 1.0, byID["c0"].CosineScore, 1e-9)
	assert.InDelta(t, 0.6, byID["c0"].CombinedScore, 1e-9)

	wantC2 := 0.6/math.Sqrt2 + 0.4*(0.090987/0.528069)
	assert.InDelta(t, wantC2, byID["c2"].CombinedScore, 1e-4)

	assert.Equal(t, []string{"c0", "c2", "c1"}, ids(got))
}

func TestRerank_AlphaExtremes(t *testing.T) {
	// Cosine order against (1, 0) is c, b, d, a, e.
	// BM25 order for "leave policy" is a, b, d, then c and e tied at zero.
	cands := []vector.Candidate{
		cand("a", "leave policy leave", 0, 1),
		cand("b", "leave", 1, 1),
		cand("c", "nothing here", 1, 0),
		cand("d", "policy words", 1, 3),
		cand("e", "unrelated filler", -1, 0),
	}
	q := []float32{1, 0}
	cosineOrder := []string{"c", "b", "d", "a", "e"}
	bm25Order := []string{"a", "b", "d", "c", "e"}

	assert.Equal(t, cosineOrder, ids(Rerank("leave policy", cands, q, 5, 1)))
	assert.Equal(t, bm25Order, ids(Rerank("leave policy", cands, q, 5, 0)))

	// Out of range values are clamped.
	assert.Equal(t, cosineOrder, ids(Rerank("leave policy", cands, q, 5, 7)))
	assert.Equal(t, bm25Order, ids(Rerank("leave policy", cands, q, 5, -3)))
}

func TestRerank_TiesKeepShortlistOrder(t *testing.T) {
	cands := []vector.Candidate{
		cand("z", "same text", 1, 0),
		cand("a", "same text", 1, 0),
		cand("m", "same text", 1, 0),
	}
	got := Rerank("nothing matches", cands, []float32{1, 0}, 3, 0.6)
	assert.Equal(t, []string{"z", "a", "m"}, ids(got))
}

func TestRerank_TopK(t *testing.T) {
	cands := []vector.Candidate{cand("a", "x", 1), cand("b", "y", 1)}

	assert.Len(t, Rerank("x", cands, []float32{1}, 1, DefaultAlpha), 1)
	assert.Len(t, Rerank("x", cands, []float32{1}, 10, DefaultAlpha), 2)

	empty := Rerank("x", cands, []float32{1}, 0, DefaultAlpha)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRerank_EmptyCandidates(t *testing.T) {
	got := Rerank("anything", nil, []float32{1}, 5, DefaultAlpha)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRerank_ZeroVectors(t *testing.T) {
	got := Rerank("q", []vector.Candidate{cand("a", "text", 0, 0)}, []float32{0, 0}, 1, DefaultAlpha)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].CosineScore)
	assert.False(t, math.IsNaN(got[0].CombinedScore))
}

func TestRerank_KeepsCandidateFields(t *testing.T) {
	c := vector.Candidate{ChunkID: "a", Text: "leave", Embedding: []float32{1}, Page: 7, Score: 0.9, Idx: 4}
	got := Rerank("leave", []vector.Candidate{c}, []float32{1}, 1, DefaultAlpha)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].Page)
	assert.Equal(t, 4, got[0].Idx)
	assert.Equal(t, 0.9, got[0].Score)
}

func ids(r []Ranked) []string {
	out := make([]string, len(r))
	for i := range r {
		out[i] = r[i].ChunkID
	}
	return out
}
