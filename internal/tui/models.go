package tui

import (
	"context"
	"strings"
	"time"

	"github.com/efebarandurmaz/hrrag/internal/answer"
	"github.com/efebarandurmaz/hrrag/internal/rag"
)

// Querier answers one question. *rag.Pipeline satisfies it.
type Querier interface {
	Query(ctx context.Context, q string, topK int) (rag.QueryResponse, error)
}

// Rating is the user's verdict on an answer.
type Rating int

const (
	Unrated Rating = iota
	Helpful
	NotHelpful
)

func (r Rating) String() string {
	switch r {
	case Helpful:
		return "helpful"
	case NotHelpful:
		return "not_helpful"
	default:
		return "unrated"
	}
}

// Turn is one question and what came back for it.
type Turn struct {
	Question string
	Response rag.QueryResponse
	Err      error
	AskedAt  time.Time
	Rating   Rating
}

// Degraded reports whether the answer came from the excerpt fallback or a
// failed LLM call rather than a generated answer.
func (t *Turn) Degraded() bool {
	if t.Err != nil {
		return false
	}
	a := t.Response.Answer
	return strings.HasPrefix(a, answer.FailurePrefix) || strings.HasPrefix(a, answer.FallbackPrefix)
}

func (t *Turn) NotFound() bool {
	return t.Err == nil && t.Response.Answer == rag.NotFoundAnswer
}

// Session holds every turn of an interactive run.
type Session struct {
	Turns     []*Turn
	TopK      int
	StartedAt time.Time
}

func NewSession(topK int) *Session {
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	return &Session{TopK: topK, StartedAt: time.Now()}
}

// Stats summarizes a session.
type Stats struct {
	Questions  int           `json:"questions"`
	Errors     int           `json:"errors"`
	Cached     int           `json:"cached"`
	Degraded   int           `json:"degraded"`
	NotFound   int           `json:"not_found"`
	Helpful    int           `json:"helpful"`
	NotHelpful int           `json:"not_helpful"`
	AvgScore   float64       `json:"avg_score"`
	AvgLatency time.Duration `json:"-"`
}

func (s *Session) Stats() Stats {
	var st Stats
	var scoreSum float64
	var latency int64
	answered := 0
	for _, t := range s.Turns {
		st.Questions++
		switch t.Rating {
		case Helpful:
			st.Helpful++
		case NotHelpful:
			st.NotHelpful++
		}
		if t.Err != nil {
			st.Errors++
			continue
		}
		answered++
		scoreSum += t.Response.Score
		latency += t.Response.Meta.LatencyMS
		if t.Response.Meta.Cached {
			st.Cached++
		}
		if t.Degraded() {
			st.Degraded++
		}
		if t.NotFound() {
			st.NotFound++
		}
	}
	if answered > 0 {
		st.AvgScore = scoreSum / float64(answered)
		st.AvgLatency = time.Duration(latency/int64(answered)) * time.Millisecond
	}
	return st
}
