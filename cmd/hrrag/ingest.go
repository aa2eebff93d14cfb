package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/hrrag/internal/app"
	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/config"
	"github.com/efebarandurmaz/hrrag/internal/extract"
	"github.com/efebarandurmaz/hrrag/internal/metrics"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/temporal"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

func newExtractCmd() *cobra.Command {
	var pdfPath, out string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract page text from a PDF into pages.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := runExtract(cmd.Context(), pdfPath, out, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d pages -> %s\n", successStyle("extracted"), len(pages), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF file to extract")
	cmd.Flags().StringVar(&out, "out", filepath.Join(temporal.DefaultWorkDir, "pages.json"), "Output JSON file")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func newChunkCmd() *cobra.Command {
	var (
		pagesPath, out    string
		maxChars, overlap int
	)
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split extracted pages into overlapping chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := extract.ReadPages(pagesPath)
			if err != nil {
				return err
			}
			chunks, err := runChunk(cmd.Context(), pages, out, maxChars, overlap, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d chunks -> %s\n", successStyle("chunked"), len(chunks), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&pagesPath, "pages", filepath.Join(temporal.DefaultWorkDir, "pages.json"), "Pages JSON from extract")
	cmd.Flags().StringVar(&out, "out", filepath.Join(temporal.DefaultWorkDir, "chunks.json"), "Output JSON file")
	cmd.Flags().IntVar(&maxChars, "max-chars", chunker.DefaultMaxChars, "Maximum characters per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "Characters shared by consecutive chunks")
	return cmd
}

func newIndexCmd(configPath *string) *cobra.Command {
	var chunksPath, out, document, reportPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed chunks and write them to the configured vector backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			if out != "" {
				cfg.Vector.IndexDir = out
			}
			chunks, err := extract.ReadChunks(chunksPath)
			if err != nil {
				return err
			}
			report := metrics.New(document)
			report.CollectChunks(chunks)
			_, err = runIndex(cmd.Context(), cfg, chunks, document, report)
			return finishReport(report, reportPath, err)
		},
	}
	cmd.Flags().StringVar(&chunksPath, "chunks", filepath.Join(temporal.DefaultWorkDir, "chunks.json"), "Chunks JSON from chunk")
	cmd.Flags().StringVar(&out, "out", "", "Index directory for the memory backend (default vector.index_dir)")
	cmd.Flags().StringVar(&document, "document", "policy.pdf", "Document name recorded in the lineage store")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the ingestion report as JSON to this file")
	return cmd
}

func newBuildCmd(configPath *string) *cobra.Command {
	var (
		pdfPath, workDir, reportPath string
		maxChars, overlap            int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Extract, chunk and index a PDF in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			document := filepath.Base(pdfPath)
			report := metrics.New(document)

			pages, err := runExtract(ctx, pdfPath, filepath.Join(workDir, "pages.json"), report)
			if err != nil {
				return finishReport(report, reportPath, err)
			}
			chunks, err := runChunk(ctx, pages, filepath.Join(workDir, "chunks.json"), maxChars, overlap, report)
			if err != nil {
				return finishReport(report, reportPath, err)
			}
			_, err = runIndex(ctx, cfg, chunks, document, report)
			return finishReport(report, reportPath, err)
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF file to ingest")
	cmd.Flags().StringVar(&workDir, "work-dir", temporal.DefaultWorkDir, "Directory for pages.json and chunks.json")
	cmd.Flags().IntVar(&maxChars, "max-chars", chunker.DefaultMaxChars, "Maximum characters per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "Characters shared by consecutive chunks")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the ingestion report as JSON to this file")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		pdfPath, workDir  string
		maxChars, overlap int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion workflow on a Temporal worker and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			c, err := temporalclient.Dial(temporalclient.Options{
				HostPort:  cfg.Temporal.Host,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			abs, err := filepath.Abs(pdfPath)
			if err != nil {
				return err
			}
			out, err := temporal.RunIngestion(cmd.Context(), c, cfg.Temporal.TaskQueue, temporal.IngestionInput{
				PDFPath:  abs,
				WorkDir:  workDir,
				MaxChars: maxChars,
				Overlap:  overlap,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s pages=%d chunks=%d indexed=%d", successStyle("ingested"), out.Pages, out.Chunks, out.Indexed)
			if out.IndexDir != "" {
				fmt.Printf(" index=%s", out.IndexDir)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF file to ingest (must be readable by the worker)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Worker-side directory for intermediate JSON")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Maximum characters per chunk (0 uses the default)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "Characters shared by consecutive chunks")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func runExtract(ctx context.Context, pdfPath, out string, report *metrics.IngestionReport) ([]chunker.Page, error) {
	_, span := observability.StartIngestSpan(ctx, "extract")
	defer span.End()

	start := time.Now()
	pages, err := extract.PDF(pdfPath)
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(out), 0o755); err == nil {
			err = extract.WritePages(out, pages)
		}
	}
	if report != nil {
		report.AddStage("extract", time.Since(start), err)
		report.CollectPages(pages)
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return pages, nil
}

func runChunk(ctx context.Context, pages []chunker.Page, out string, maxChars, overlap int, report *metrics.IngestionReport) ([]chunker.Chunk, error) {
	_, span := observability.StartIngestSpan(ctx, "chunk")
	defer span.End()

	start := time.Now()
	chunks, err := chunker.ChunkPages(pages, maxChars, overlap)
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(out), 0o755); err == nil {
			err = extract.WriteChunks(out, chunks)
		}
	}
	if report != nil {
		report.AddStage("chunk", time.Since(start), err)
		report.CollectChunks(chunks)
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return chunks, nil
}

// runIndex embeds and writes chunks, saves memory artifacts and records lineage.
// Lineage failures are reported but do not fail the run.
func runIndex(ctx context.Context, cfg *config.Config, chunks []chunker.Chunk, document string, report *metrics.IngestionReport) (int, error) {
	tp, err := app.InitTracing(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer tp.Shutdown(context.Background())

	ctx, span := observability.StartIngestSpan(ctx, "index")
	defer span.End()

	backends, err := app.OpenBackends(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer backends.Close()
	if backends.Embedder == nil {
		return 0, backends.EmbedErr
	}
	report.Embedding = backends.Embedder.Backend()
	report.Backend = cfg.Vector.Backend

	store, w, err := app.OpenWriter(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	start := time.Now()
	n, err := vector.NewIndexer(backends.Embedder, w, cfg.Embedding.BatchSize).IndexChunks(ctx, chunks)
	if err == nil {
		if saver, ok := store.(temporal.Saver); ok {
			err = saver.Save(cfg.Vector.IndexDir)
		}
	}
	report.AddStage("index", time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}

	start = time.Now()
	lineage := app.OpenLineage(ctx, cfg)
	lerr := lineage.StoreChunks(ctx, document, chunks)
	if cerr := lineage.Close(ctx); lerr == nil {
		lerr = cerr
	}
	report.AddStage("lineage", time.Since(start), lerr)
	if lerr != nil {
		slog.Warn("lineage not recorded", "error", lerr)
	}

	report.Finish(n)
	return n, nil
}

func finishReport(report *metrics.IngestionReport, path string, runErr error) error {
	if report.FinishedAt.IsZero() {
		report.Finish(report.Indexed)
	}
	report.PrintSummary(os.Stdout)
	if path != "" {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return runErr
}
