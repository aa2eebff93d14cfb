package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestionWorkflow)
	w.RegisterActivity(ExtractActivity)
	w.RegisterActivity(ChunkActivity)
	w.RegisterActivity(IndexActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// RunIngestion starts IngestionWorkflow on taskQueue and waits for its result.
func RunIngestion(ctx context.Context, c client.Client, taskQueue string, input IngestionInput) (*IngestionOutput, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "ingest-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}, IngestionWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("start ingestion workflow: %w", err)
	}
	slog.Info("ingestion workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out IngestionOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("ingestion workflow %s: %w", run.GetID(), err)
	}
	return &out, nil
}
