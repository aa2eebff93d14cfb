package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventQueryAnswer AuditEventType = "query.answer"
	AuditEventQueryError  AuditEventType = "query.error"
	AuditEventIngestStart AuditEventType = "ingest.start"
	AuditEventIngestEnd   AuditEventType = "ingest.end"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Success     bool           `json:"success"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines. A nil or disabled logger
// drops every event.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
	masker    TextMasker
}

// TextMasker hides sensitive substrings in audited questions.
type TextMasker interface {
	MaskText(string) string
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, "stdout" or "stderr"
	SessionID  string
	Masker     TextMasker
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if !cfg.Enabled {
		return &AuditLogger{}, nil
	}

	var writer io.Writer
	switch cfg.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}
	return NewAuditWriter(writer, cfg.SessionID).WithMasker(cfg.Masker), nil
}

// NewAuditWriter returns an enabled logger writing to w.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: true}
}

// WithMasker sets the masker applied to questions before they are written.
func (l *AuditLogger) WithMasker(m TextMasker) *AuditLogger {
	if l != nil {
		l.masker = m
	}
	return l
}

func (l *AuditLogger) question(q string) string {
	if l.masker == nil {
		return q
	}
	return l.masker.MaskText(q)
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// QueryRecord is the audited outcome of one answered question.
type QueryRecord struct {
	Question string
	Sources  []string
	Score    float64
	Cached   bool
	Degraded bool
	Duration time.Duration
}

// LogQuery logs an answered question.
func (l *AuditLogger) LogQuery(rec QueryRecord) {
	if l == nil || !l.enabled {
		return
	}
	_ = l.Log(&AuditEvent{
		EventType:  AuditEventQueryAnswer,
		Success:    !rec.Degraded,
		DurationMS: rec.Duration.Milliseconds(),
		Details: map[string]any{
			"question": l.question(rec.Question),
			"sources":  rec.Sources,
			"score":    rec.Score,
			"cached":   rec.Cached,
			"degraded": rec.Degraded,
		},
	})
}

// LogQueryError logs a question that failed.
func (l *AuditLogger) LogQueryError(question string, err error) {
	if l == nil || !l.enabled {
		return
	}
	_ = l.Log(&AuditEvent{
		EventType:   AuditEventQueryError,
		Success:     false,
		Details:     map[string]any{"question": l.question(question)},
		ErrorDetail: err.Error(),
	})
}

// LogIngestStart logs the start of an ingestion run.
func (l *AuditLogger) LogIngestStart(workflowID, pdfPath string) {
	_ = l.Log(&AuditEvent{
		EventType:  AuditEventIngestStart,
		WorkflowID: workflowID,
		Success:    true,
		Details:    map[string]any{"pdf": pdfPath},
	})
}

// LogIngestEnd logs the end of an ingestion run.
func (l *AuditLogger) LogIngestEnd(workflowID string, chunks int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType:  AuditEventIngestEnd,
		WorkflowID: workflowID,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
		Details:    map[string]any{"chunks": chunks},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	_ = l.Log(event)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
