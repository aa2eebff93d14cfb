// Package extract turns a PDF policy document into per-page plain text.
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
)

// PDF reads every page of the document at path. Pages are 1-based; pages
// without a content stream yield empty text so page numbers stay aligned.
func PDF(path string) (pages []chunker.Page, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("parse pdf %s: %v", path, rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]chunker.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, chunker.Page{Page: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, chunker.Page{Page: i, Text: text})
	}
	slog.Debug("extracted pdf", "path", path, "pages", n)
	return pages, nil
}

// WritePages stores pages as a JSON array of {page,text}.
func WritePages(path string, pages []chunker.Page) error {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPages loads a file written by WritePages.
func ReadPages(path string) ([]chunker.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pages []chunker.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pages, nil
}

// WriteChunks stores chunks as a JSON array in the meta.json record format.
func WriteChunks(path string, chunks []chunker.Chunk) error {
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadChunks loads a file written by WriteChunks.
func ReadChunks(path string) ([]chunker.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []chunker.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return chunks, nil
}
