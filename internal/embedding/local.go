package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// Local runs a sentence-transformers model through hugot's pure Go backend.
// MiniLM produces 384-dimensional vectors.
type Local struct {
	mu       sync.Mutex // the pipeline is not safe for concurrent runs
	model    string
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewLocal loads model from modelDir, downloading it on first use.
func NewLocal(_ context.Context, model, modelDir string) (*Local, error) {
	path, err := prepareModel(model, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      "hrrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create embedding pipeline: %w", err)
	}
	return &Local{model: model, session: session, pipeline: pipeline}, nil
}

func prepareModel(model, modelDir string) (string, error) {
	if modelDir == "" {
		modelDir = "models"
	}
	path := filepath.Join(modelDir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(model, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	return downloaded, nil
}

func (l *Local) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out, err := l.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

func (l *Local) Name() string { return "local:" + l.model }

// Close releases the ONNX session.
func (l *Local) Close() error { return l.session.Destroy() }
