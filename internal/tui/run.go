package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive question screen, then shows the session summary.
func Run(ctx context.Context, q Querier, topK int) (*Session, error) {
	session := NewSession(topK)

	p := tea.NewProgram(NewAskModel(ctx, q, session), tea.WithAltScreen(), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	final := finalModel.(AskModel)

	if len(final.Session().Turns) > 0 {
		sp := tea.NewProgram(NewSummaryModel(final.Session()), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := sp.Run(); err != nil {
			return nil, fmt.Errorf("summary error: %w", err)
		}
	}
	return final.Session(), nil
}

// Transcript is the JSON form of a session.
type Transcript struct {
	StartedAt string           `json:"started_at"`
	TopK      int              `json:"top_k"`
	Turns     []TranscriptTurn `json:"turns"`
	Summary   Stats            `json:"summary"`
}

type TranscriptTurn struct {
	AskedAt   string   `json:"asked_at"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer,omitempty"`
	Sources   []string `json:"sources"`
	Score     float64  `json:"score"`
	Cached    bool     `json:"cached"`
	LatencyMS int64    `json:"latency_ms"`
	Rating    string   `json:"rating"`
	Error     string   `json:"error,omitempty"`
}

// BuildTranscript converts a session into its JSON form.
func BuildTranscript(session *Session) Transcript {
	tr := Transcript{
		StartedAt: session.StartedAt.UTC().Format(time.RFC3339),
		TopK:      session.TopK,
		Turns:     make([]TranscriptTurn, 0, len(session.Turns)),
		Summary:   session.Stats(),
	}
	for _, t := range session.Turns {
		tt := TranscriptTurn{
			AskedAt:   t.AskedAt.UTC().Format(time.RFC3339),
			Question:  t.Question,
			Answer:    t.Response.Answer,
			Sources:   t.Response.SourceIDs(),
			Score:     t.Response.Score,
			Cached:    t.Response.Meta.Cached,
			LatencyMS: t.Response.Meta.LatencyMS,
			Rating:    t.Rating.String(),
		}
		if tt.Sources == nil {
			tt.Sources = []string{}
		}
		if t.Err != nil {
			tt.Error = t.Err.Error()
		}
		tr.Turns = append(tr.Turns, tt)
	}
	return tr
}

// SaveTranscript writes the session as indented JSON.
func SaveTranscript(session *Session, outputPath string) error {
	data, err := json.MarshalIndent(BuildTranscript(session), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
