// Package embedding turns query and chunk text into vectors. The backend is
// resolved once at startup by Select and then shared by all requests.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/hrrag/internal/llm"
)

const (
	// MaxInputChars bounds the text sent per embedding, counted in runes.
	MaxInputChars     = 8192
	DefaultBatchSize  = 16
	DefaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// ErrBackendUnavailable means no embedding backend could be configured or a
// backend call failed.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// Backend produces one vector per input text, in order.
type Backend interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Options controls backend selection.
type Options struct {
	// Remote is an OpenAI-compatible provider; nil when no API key is set.
	Remote llm.Provider
	// Local enables the on-device ONNX model when Remote is nil.
	Local      bool
	LocalModel string
	ModelDir   string
	// LoadLocal builds the local backend; nil uses the hugot pipeline.
	LoadLocal func(ctx context.Context, model, modelDir string) (Backend, error)
	// Concurrency bounds parallel batch calls in EmbedBatch (default 1).
	Concurrency int
}

// Provider embeds text with the selected backend.
type Provider struct {
	backend     Backend
	concurrency int
}

// NewProvider wraps an already constructed backend.
func NewProvider(backend Backend, concurrency int) *Provider {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Provider{backend: backend, concurrency: concurrency}
}

// Select picks the remote backend when a provider is configured, otherwise
// the local model when enabled and loadable. Local is on by default in the
// configuration, so a deployment without an API key still gets embeddings.
func Select(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Remote != nil {
		slog.Info("embedding backend selected", "backend", "remote", "provider", opts.Remote.Name())
		return NewProvider(NewRemote(opts.Remote), opts.Concurrency), nil
	}
	if opts.Local {
		model := opts.LocalModel
		if model == "" {
			model = DefaultLocalModel
		}
		load := opts.LoadLocal
		if load == nil {
			load = loadHugot
		}
		local, err := load(ctx, model, opts.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("%w: local model %s: %v", ErrBackendUnavailable, model, err)
		}
		slog.Info("embedding backend selected", "backend", "local", "model", model)
		return NewProvider(local, opts.Concurrency), nil
	}
	return nil, fmt.Errorf("%w: no embedding backend available: set llm.api_key (HRRAG_LLM_API_KEY) or enable embedding.local", ErrBackendUnavailable)
}

func loadHugot(ctx context.Context, model, modelDir string) (Backend, error) {
	l, err := NewLocal(ctx, model, modelDir)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Backend returns the selected backend's name.
func (p *Provider) Backend() string { return p.backend.Name() }

// Close releases backend resources such as the local ONNX session.
func (p *Provider) Close() error {
	if c, ok := p.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Embed returns the vector for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.call(ctx, []string{Truncate(text)})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in groups of batchSize (default 16), one backend
// call per group. Results keep input order regardless of concurrency.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		g.Go(func() error {
			group := make([]string, end-start)
			for i, t := range texts[start:end] {
				group[i] = Truncate(t)
			}
			vecs, err := p.call(gctx, group)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) call(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.backend.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, p.backend.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrBackendUnavailable, p.backend.Name(), len(vecs), len(texts))
	}
	return vecs, nil
}

// Truncate cuts text to MaxInputChars runes.
func Truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxInputChars {
			return text[:i]
		}
		n++
	}
	return text
}
