package temporal

import (
	"fmt"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestionInput holds the workflow parameters.
type IngestionInput struct {
	PDFPath string
	// WorkDir receives pages.json and chunks.json.
	WorkDir string
	// Document names the source in the lineage store; defaults to the PDF file name.
	Document string
	MaxChars int
	Overlap  int
}

// IngestionOutput holds the workflow result.
type IngestionOutput struct {
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Indexed  int    `json:"indexed"`
	IndexDir string `json:"index_dir,omitempty"`
}

// DefaultWorkDir is where intermediate JSON lands when WorkDir is unset.
const DefaultWorkDir = "data/extracted_text"

func (in IngestionInput) workDir() string {
	if in.WorkDir != "" {
		return in.WorkDir
	}
	return DefaultWorkDir
}

func (in IngestionInput) document() string {
	if in.Document != "" {
		return in.Document
	}
	return filepath.Base(in.PDFPath)
}

// IngestionWorkflow extracts the PDF, chunks its pages and indexes the chunks.
// Each stage hands the next one a file path rather than the payload itself.
func IngestionWorkflow(ctx workflow.Context, input IngestionInput) (*IngestionOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidInput},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	log := workflow.GetLogger(ctx)

	var extracted ExtractResult
	if err := workflow.ExecuteActivity(ctx, ExtractActivity, input).Get(ctx, &extracted); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	log.Info("extracted pages", "pages", extracted.Pages)

	var chunked ChunkResult
	if err := workflow.ExecuteActivity(ctx, ChunkActivity, input, extracted.PagesPath).Get(ctx, &chunked); err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	log.Info("chunked pages", "chunks", chunked.Chunks)

	var indexed IndexResult
	if err := workflow.ExecuteActivity(ctx, IndexActivity, input, chunked.ChunksPath).Get(ctx, &indexed); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	return &IngestionOutput{
		Pages:    extracted.Pages,
		Chunks:   chunked.Chunks,
		Indexed:  indexed.Indexed,
		IndexDir: indexed.IndexDir,
	}, nil
}
