package rag

// Source is one cited policy excerpt. Score is the combined rerank score.
type Source struct {
	ID    string  `json:"id"`
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Meta carries per-request details that are not part of the answer itself.
type Meta struct {
	LatencyMS int64 `json:"latency_ms"`
	Cached    bool  `json:"cached"`
}

// QueryResponse is the answer to one question.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Score   float64  `json:"score"`
	Meta    Meta     `json:"meta"`
}

// Clone returns a deep copy. Sources is never nil in the copy so that it
// encodes as a JSON array.
func (r QueryResponse) Clone() QueryResponse {
	out := r
	out.Sources = make([]Source, len(r.Sources))
	copy(out.Sources, r.Sources)
	return out
}

// SourceIDs lists the cited chunk ids in order.
func (r QueryResponse) SourceIDs() []string {
	ids := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		ids[i] = s.ID
	}
	return ids
}
