package rerank

import "math"

// Okapi BM25 parameters.
const (
	k1      = 1.5
	b       = 0.75
	epsilon = 0.25
)

// bm25 scores every document in corpus against the query tokens. The corpus
// is only the shortlist being reranked, so idf reflects the shortlist.
// Negative idf values (terms in more than half the documents) are replaced
// by epsilon times the mean idf.
func bm25(corpus [][]string, query []string) []float64 {
	n := len(corpus)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}

	freqs := make([]map[string]int, n)
	df := make(map[string]int)
	var totalLen int
	for i, doc := range corpus {
		totalLen += len(doc)
		f := make(map[string]int, len(doc))
		for _, tok := range doc {
			f[tok]++
		}
		freqs[i] = f
		for tok := range f {
			df[tok]++
		}
	}
	avgdl := float64(totalLen) / float64(n)

	idf := make(map[string]float64, len(df))
	var idfSum float64
	var negative []string
	for tok, d := range df {
		v := math.Log(float64(n)-float64(d)+0.5) - math.Log(float64(d)+0.5)
		idf[tok] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}
	floor := epsilon * idfSum / float64(len(idf))
	for _, tok := range negative {
		idf[tok] = floor
	}

	for i, doc := range corpus {
		dl := float64(len(doc))
		for _, q := range query {
			tf := float64(freqs[i][q])
			if tf == 0 {
				continue
			}
			norm := 1.0
			if avgdl > 0 {
				norm = 1 - b + b*dl/avgdl
			}
			scores[i] += idf[q] * tf * (k1 + 1) / (tf + k1*norm)
		}
	}
	return scores
}
