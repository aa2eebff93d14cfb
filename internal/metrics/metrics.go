// Package metrics summarizes an ingestion run: what was read from the PDF,
// how it was chunked and what ended up in the index.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// IngestionReport collects statistics for one ingestion run.
type IngestionReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	Document   string        `json:"document"`
	Embedding  string        `json:"embedding_backend"`
	Backend    string        `json:"vector_backend"`
	Pages      PageStats     `json:"pages"`
	Chunks     ChunkStats    `json:"chunks"`
	Stages     []StageTiming `json:"stages"`
	Indexed    int           `json:"indexed"`
	Errors     []string      `json:"errors,omitempty"`
}

type PageStats struct {
	Total int `json:"total"`
	Empty int `json:"empty"`
	Chars int `json:"chars"`
}

type ChunkStats struct {
	Total    int `json:"total"`
	MinChars int `json:"min_chars"`
	MaxChars int `json:"max_chars"`
	AvgChars int `json:"avg_chars"`
}

type StageTiming struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Err        string `json:"error,omitempty"`
}

// New starts tracking an ingestion run.
func New(document string) *IngestionReport {
	return &IngestionReport{StartedAt: time.Now(), Document: document}
}

// CollectPages records page statistics. Pages whose text is blank count as empty.
func (r *IngestionReport) CollectPages(pages []chunker.Page) {
	r.Pages = PageStats{Total: len(pages)}
	for _, p := range pages {
		n := len([]rune(chunker.CleanText(p.Text)))
		if n == 0 {
			r.Pages.Empty++
		}
		r.Pages.Chars += n
	}
}

// CollectChunks records chunk size statistics in runes.
func (r *IngestionReport) CollectChunks(chunks []chunker.Chunk) {
	r.Chunks = ChunkStats{Total: len(chunks)}
	if len(chunks) == 0 {
		return
	}
	total := 0
	for i, c := range chunks {
		n := len([]rune(c.Text))
		total += n
		if i == 0 || n < r.Chunks.MinChars {
			r.Chunks.MinChars = n
		}
		if n > r.Chunks.MaxChars {
			r.Chunks.MaxChars = n
		}
	}
	r.Chunks.AvgChars = total / len(chunks)
}

// AddStage records a stage's timing and error, if any.
func (r *IngestionReport) AddStage(name string, d time.Duration, err error) {
	st := StageTiming{Name: name, DurationMS: d.Milliseconds()}
	if err != nil {
		st.Err = err.Error()
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
	}
	r.Stages = append(r.Stages, st)
}

// Finish marks the run as complete.
func (r *IngestionReport) Finish(indexed int) {
	r.FinishedAt = time.Now()
	r.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.Indexed = indexed
}

// PrintSummary writes a human-readable summary.
func (r *IngestionReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        HRRAG INGESTION REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Document:    %-23s║\n", truncate(r.Document, 23))
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", (time.Duration(r.DurationMS) * time.Millisecond).String())
	fmt.Fprintf(w, "║ Embedding:   %-23s║\n", truncate(r.Embedding, 23))
	fmt.Fprintf(w, "║ Index:       %-23s║\n", truncate(r.Backend, 23))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ PAGES\n")
	fmt.Fprintf(w, "║   Total:       %d\n", r.Pages.Total)
	fmt.Fprintf(w, "║   Empty:       %d\n", r.Pages.Empty)
	fmt.Fprintf(w, "║   Characters:  %d\n", r.Pages.Chars)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ CHUNKS\n")
	fmt.Fprintf(w, "║   Total:       %d\n", r.Chunks.Total)
	fmt.Fprintf(w, "║   Size:        %d-%d (avg %d)\n", r.Chunks.MinChars, r.Chunks.MaxChars, r.Chunks.AvgChars)
	fmt.Fprintf(w, "║   Indexed:     %d\n", r.Indexed)
	if len(r.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range r.Stages {
			status := "OK"
			if s.Err != "" {
				status = "FAILED"
			}
			fmt.Fprintf(w, "║   %-10s %8s  %s\n", s.Name, time.Duration(s.DurationMS)*time.Millisecond, status)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *IngestionReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return "…" + string(r[len(r)-n+1:])
	}
	return s
}
