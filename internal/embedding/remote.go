package embedding

import (
	"context"

	"github.com/efebarandurmaz/hrrag/internal/llm"
)

// Remote embeds through an OpenAI-compatible /embeddings endpoint.
type Remote struct {
	provider llm.Provider
}

func NewRemote(p llm.Provider) *Remote { return &Remote{provider: p} }

func (r *Remote) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return r.provider.Embed(ctx, texts)
}

func (r *Remote) Name() string { return "remote:" + r.provider.Name() }
