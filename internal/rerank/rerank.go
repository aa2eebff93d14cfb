// Package rerank reorders a vector-search shortlist by fusing BM25 lexical
// relevance with cosine similarity.
package rerank

import (
	"math"
	"sort"
	"strings"

	"github.com/efebarandurmaz/hrrag/internal/vector"
)

// DefaultAlpha weights cosine similarity against normalized BM25.
const DefaultAlpha = 0.6

const normEps = 1e-12

// Ranked is a candidate annotated with its fusion scores. BM25Score is the
// normalized value used in the fusion.
type Ranked struct {
	vector.Candidate
	CombinedScore float64
	BM25Score     float64
	CosineScore   float64
}

// Rerank scores cands against the query and returns the best topK, highest
// combined score first. Ties keep shortlist order.
// alpha is clamped to [0, 1].
func Rerank(query string, cands []vector.Candidate, queryEmb []float32, topK int, alpha float64) []Ranked {
	if len(cands) == 0 || topK <= 0 {
		return []Ranked{}
	}
	alpha = math.Max(0, math.Min(1, alpha))

	corpus := make([][]string, len(cands))
	for i, c := range cands {
		corpus[i] = strings.Fields(c.Text)
	}
	bm := bm25(corpus, strings.Fields(query))
	normalizeMax(bm)

	q := unit(queryEmb)
	ranked := make([]Ranked, len(cands))
	for i, c := range cands {
		cos := dot(unit(c.Embedding), q)
		ranked[i] = Ranked{
			Candidate:     c,
			CombinedScore: alpha*cos + (1-alpha)*bm[i],
			BM25Score:     bm[i],
			CosineScore:   cos,
		}
	}
	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	// order starts in shortlist order, so the stable sort breaks ties by position.
	sort.SliceStable(order, func(x, y int) bool {
		return ranked[order[x]].CombinedScore > ranked[order[y]].CombinedScore
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]Ranked, topK)
	for i := 0; i < topK; i++ {
		out[i] = ranked[order[i]]
	}
	return out
}

func normalizeMax(scores []float64) {
	max := math.Inf(-1)
	for _, s := range scores {
		max = math.Max(max, s)
	}
	if max <= 0 {
		return
	}
	for i := range scores {
		scores[i] /= max + normEps
	}
}

// unit scales v by 1/(|v| + eps), matching the fusion's normalization.
func unit(v []float32) []float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEps
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
