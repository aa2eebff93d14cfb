package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/hrrag/internal/llm"
	"github.com/efebarandurmaz/hrrag/internal/rerank"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

type scriptedProvider struct {
	content string
	err     error
	block   bool

	prompt *llm.Prompt
	opts   *llm.RequestOptions
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, p *llm.Prompt, o *llm.RequestOptions) (*llm.Response, error) {
	s.prompt, s.opts = p, o
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func (s *scriptedProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unused")
}

func ranked(texts ...string) []rerank.Ranked {
	out := make([]rerank.Ranked, len(texts))
	for i, t := range texts {
		out[i] = rerank.Ranked{Candidate: vector.Candidate{ChunkID: "id" + string(rune('a'+i)), Page: i + 1, Text: t}}
	}
	return out
}

func TestBuildContext(t *testing.T) {
	got := BuildContext(ranked("Annual leave is 15 days.", "Sick leave is 10 days."))
	want := "[1] (id:ida) (page:1)\nAnnual leave is 15 days.\n[2] (id:idb) (page:2)\nSick leave is 10 days.\n"
	assert.Equal(t, want, got)
	assert.Empty(t, BuildContext(nil))
}

func TestSynthesize_LLM(t *testing.T) {
	p := &scriptedProvider{content: "<think>look at [1]</think>\n Employees get 15 days (ida). "}
	s := New(p, Options{})

	res := s.Synthesize(context.Background(), "How many leave days?", ranked("Annual leave is 15 days."))
	assert.Equal(t, Result{Answer: "Employees get 15 days (ida)."}, res)

	require.NotNil(t, p.prompt)
	assert.Equal(t, SystemPrompt, p.prompt.SystemPrompt)
	require.Len(t, p.prompt.Messages, 1)
	user := p.prompt.Messages[0].Content
	assert.True(t, strings.HasPrefix(user, "CONTEXT:\n\n[1] (id:ida) (page:1)\nAnnual leave is 15 days.\n\nQUESTION: How many leave days?\n\nINSTRUCTIONS:\n"))
	assert.Contains(t, user, "- Cite the excerpt ids you used in parentheses at the end.\n")

	require.NotNil(t, p.opts.Temperature)
	assert.Zero(t, *p.opts.Temperature)
	assert.Equal(t, 512, *p.opts.MaxTokens)
}

func TestSynthesize_FailureIsDegraded(t *testing.T) {
	s := New(&scriptedProvider{err: errors.New("openai: 429 Too Many Requests: quota")}, Options{})

	res := s.Synthesize(context.Background(), "q", ranked("text"))
	assert.True(t, res.Degraded)
	assert.False(t, res.Canceled)
	assert.Equal(t, "(LLM call failed) openai: 429 Too Many Requests: quota", res.Answer)
}

func TestSynthesize_EmptyCompletionIsDegraded(t *testing.T) {
	res := New(&scriptedProvider{content: "<think>only thoughts</think>"}, Options{}).
		Synthesize(context.Background(), "q", ranked("text"))
	assert.True(t, res.Degraded)
	assert.True(t, strings.HasPrefix(res.Answer, FailurePrefix))
}

func TestSynthesize_Timeout(t *testing.T) {
	s := New(&scriptedProvider{block: true}, Options{Timeout: 20 * time.Millisecond})

	res := s.Synthesize(context.Background(), "q", ranked("text"))
	assert.True(t, res.Degraded)
	assert.False(t, res.Canceled, "a timeout is a backend failure, not a cancellation")
	assert.Contains(t, res.Answer, "deadline exceeded")
}

func TestSynthesize_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(&scriptedProvider{block: true}, Options{}).Synthesize(ctx, "q", ranked("text"))
	assert.True(t, res.Degraded)
	assert.True(t, res.Canceled)
}

func TestSynthesize_Extractive(t *testing.T) {
	s := New(nil, Options{})
	assert.False(t, s.UsesLLM())

	res := s.Synthesize(context.Background(), "q", ranked("First\nline.", "Second.", "Third.", "Fourth."))
	assert.False(t, res.Degraded)
	assert.Equal(t, "Based on the policy excerpts: First line.  Second.  Third....", res.Answer)
}

func TestExtractive_Truncates(t *testing.T) {
	long := strings.Repeat("ä", 900)
	got := Extractive(ranked(long))

	body := strings.TrimSuffix(strings.TrimPrefix(got, FallbackPrefix), "...")
	assert.Equal(t, 700, len([]rune(body)))
	assert.NotContains(t, got, "\n")
}

func TestExtractive_Empty(t *testing.T) {
	assert.Equal(t, "Based on the policy excerpts: ...", Extractive(nil))
}
