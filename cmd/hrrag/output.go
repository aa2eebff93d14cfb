package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"

	"github.com/efebarandurmaz/hrrag/internal/rag"
)

var (
	errorStyle   = color.New(color.FgRed, color.Bold).SprintFunc()
	successStyle = color.New(color.FgGreen).SprintFunc()
	headerStyle  = color.New(color.FgCyan, color.Bold).SprintFunc()
	sourceStyle  = color.New(color.FgBlue, color.Bold).SprintFunc()
	dimStyle     = color.New(color.Faint).SprintFunc()
	warnStyle    = color.New(color.FgYellow).SprintFunc()
)

type outputMode int

const (
	outputText outputMode = iota
	outputJSON
	outputRaw
)

func printResponse(w io.Writer, resp rag.QueryResponse, mode outputMode) error {
	switch mode {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case outputRaw:
		_, err := pp.Fprintln(w, resp)
		return err
	}

	fmt.Fprintln(w, headerStyle("Answer"))
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)

	status := successStyle("live")
	if resp.Meta.Cached {
		status = warnStyle("cached")
	}
	fmt.Fprintf(w, "%s score=%.3f latency=%dms %s\n\n", headerStyle("Sources"), resp.Score, resp.Meta.LatencyMS, status)
	if len(resp.Sources) == 0 {
		fmt.Fprintln(w, dimStyle("  (none)"))
	}
	for _, s := range resp.Sources {
		fmt.Fprintf(w, "  %s  page %d  %s\n", sourceStyle(s.ID), s.Page, dimStyle(fmt.Sprintf("%.3f", s.Score)))
		fmt.Fprintf(w, "    %s\n", snippet(s.Text, 200))
	}
	return nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}
