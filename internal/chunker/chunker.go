// Package chunker cleans extracted page text and splits it into overlapping,
// deterministically identified windows.
package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultMaxChars = 1200
	DefaultOverlap  = 200
)

// Page is the extracted text of one 1-based PDF page.
type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Chunk is one window of page text. Start and End are rune offsets into the
// cleaned page text. The JSON shape is the meta.json record format.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	Page    int    `json:"page"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
}

var (
	multiNewline = regexp.MustCompile(`\n{2,}`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanText normalizes line endings and collapses all whitespace runs to a single space.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = multiNewline.ReplaceAllString(s, "\n")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ChunkID derives the 10-hex-character identifier of a window.
func ChunkID(page, start, end int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("p%d_s%d_e%d", page, start, end)))
	return hex.EncodeToString(sum[:])[:10]
}

// ChunkPage splits already cleaned text into windows of at most maxChars runes,
// consecutive windows sharing overlap runes. Windows that are blank after
// trimming are dropped. Callers must ensure overlap < maxChars.
func ChunkPage(page int, text string, maxChars, overlap int) []Chunk {
	runes := []rune(text)
	n := len(runes)
	var chunks []Chunk
	start := 0
	for start < n {
		end := start + maxChars
		if end > n {
			end = n
		}
		body := strings.TrimSpace(string(runes[start:end]))
		if body != "" {
			chunks = append(chunks, Chunk{
				ChunkID: ChunkID(page, start, end),
				Page:    page,
				Start:   start,
				End:     end,
				Text:    body,
			})
		}
		if end == n {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// ChunkPages cleans and chunks every page in order.
func ChunkPages(pages []Page, maxChars, overlap int) ([]Chunk, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("max chars must be positive, got %d", maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, maxChars)
	}
	var out []Chunk
	for _, p := range pages {
		out = append(out, ChunkPage(p.Page, CleanText(p.Text), maxChars, overlap)...)
	}
	return out, nil
}
