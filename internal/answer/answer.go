// Package answer turns reranked policy excerpts into a short cited answer,
// either through a generative model or by quoting the excerpts.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/hrrag/internal/llm"
	"github.com/efebarandurmaz/hrrag/internal/rerank"
)

const (
	SystemPrompt = "You are an HR assistant. Use only the provided policy excerpts to answer the user's question. If the policy does not contain an answer, say you could not find it and recommend escalation to HR."

	FailurePrefix  = "(LLM call failed) "
	FallbackPrefix = "Based on the policy excerpts: "

	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 512

	fallbackExcerpts = 3
	fallbackChars    = 700
)

var errEmptyAnswer = errors.New("empty completion")

// Result is the outcome of synthesis. Degraded marks an answer produced after
// the generative call failed; Canceled marks a failure caused by the caller's
// context rather than the backend.
type Result struct {
	Answer   string
	Degraded bool
	Canceled bool
	// Tokens is the prompt plus completion usage reported by the provider.
	Tokens int
}

// Options tunes the generative call.
type Options struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Synthesizer produces answers. A nil provider selects the extractive fallback.
type Synthesizer struct {
	provider llm.Provider
	opts     Options
}

// New creates a Synthesizer. Zero option fields take the defaults
// (30s timeout, 512 tokens, temperature 0).
func New(provider llm.Provider, opts Options) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Synthesizer{provider: provider, opts: opts}
}

// UsesLLM reports whether answers come from a generative model.
func (s *Synthesizer) UsesLLM() bool { return s.provider != nil }

// Provider names the generative backend, or "extractive" without one.
func (s *Synthesizer) Provider() string {
	if s.provider == nil {
		return "extractive"
	}
	return s.provider.Name()
}

// BuildContext renders excerpts as numbered blocks tagged with chunk id and
// page. Each block ends with a newline; blocks are concatenated.
func BuildContext(ranked []rerank.Ranked) string {
	var sb strings.Builder
	for i, r := range ranked {
		fmt.Fprintf(&sb, "[%d] (id:%s) (page:%d)\n%s\n", i+1, r.ChunkID, r.Page, r.Text)
	}
	return sb.String()
}

// UserPrompt is the question prompt sent with the rendered context.
func UserPrompt(context, question string) string {
	return fmt.Sprintf("CONTEXT:\n\n%s\nQUESTION: %s\n\nINSTRUCTIONS:\n- Answer concisely (2-4 sentences).\n- Cite the excerpt ids you used in parentheses at the end.\n", context, question)
}

// Synthesize answers query from ranked. It never returns an error: backend
// failures come back as a degraded answer carrying the failure text.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, ranked []rerank.Ranked) Result {
	if s.provider == nil {
		return Result{Answer: Extractive(ranked)}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	prompt := llm.NewPrompt(SystemPrompt, UserPrompt(BuildContext(ranked), query))
	resp, err := s.provider.Complete(callCtx, prompt, &llm.RequestOptions{
		Temperature: llm.Float64Ptr(s.opts.Temperature),
		MaxTokens:   llm.IntPtr(s.opts.MaxTokens),
	})
	var text string
	if err == nil {
		text = llm.StripThinkingTags(resp.Content)
		if text == "" {
			err = errEmptyAnswer
		}
	}
	if err != nil {
		canceled := ctx.Err() != nil
		slog.Warn("answer generation failed", "provider", s.provider.Name(), "canceled", canceled, "error", err)
		return Result{Answer: FailurePrefix + err.Error(), Degraded: true, Canceled: canceled}
	}
	return Result{Answer: text, Tokens: resp.InputTokens + resp.OutputTokens}
}

// Extractive quotes the first excerpts when no generative model is configured.
func Extractive(ranked []rerank.Ranked) string {
	n := len(ranked)
	if n > fallbackExcerpts {
		n = fallbackExcerpts
	}
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i] = ranked[i].Text
	}
	joined := strings.Join(texts, "\n\n")
	if r := []rune(joined); len(r) > fallbackChars {
		joined = string(r[:fallbackChars])
	}
	answer := FallbackPrefix + strings.TrimSpace(joined) + "..."
	return strings.ReplaceAll(answer, "\n", " ")
}
