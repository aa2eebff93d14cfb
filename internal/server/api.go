// Package server exposes the question-answering pipeline over HTTP together
// with health probes, metrics and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/efebarandurmaz/hrrag/internal/graph"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/rag"
)

const (
	maxBodyBytes = 1 << 20

	detailEmptyQuery       = "Empty query"
	detailIndexUnavailable = "Search index not available. Build it first."
	detailBackend          = "Embedding backend not available. Configure an API key or a local model."
	detailTimeout          = "Request timed out"
	detailInternal         = "Internal server error"
	detailChunkNotFound    = "Chunk not found"
)

// querySchema validates POST /query bodies. Unknown fields are ignored.
// top_k has no upper bound; the result set is capped by the search shortlist.
const querySchema = `{
  "type": "object",
  "properties": {
    "q":     {"type": "string"},
    "top_k": {"type": "integer", "minimum": 1}
  },
  "required": ["q"]
}`

// Querier answers questions; *rag.Pipeline implements it.
type Querier interface {
	Query(ctx context.Context, q string, topK int) (rag.QueryResponse, error)
	IndexSize(ctx context.Context) int
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigin      string
}

// Server is the hrrag HTTP API.
type Server struct {
	cfg     Config
	querier Querier
	lineage graph.Repository
	metrics *observability.RAGMetrics
	health  *HealthServer
	schema  *gojsonschema.Schema
	srv     *http.Server
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLineage serves GET /chunks/{id} from repo.
func WithLineage(repo graph.Repository) Option {
	return func(s *Server) { s.lineage = repo }
}

// WithMetrics serves GET /metrics from m.
func WithMetrics(m *observability.RAGMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts the readiness, liveness and component probes.
func WithHealth(h *HealthServer) Option {
	return func(s *Server) { s.health = h }
}

// New creates the API server.
func New(cfg Config, q Querier, opts ...Option) (*Server, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(querySchema))
	if err != nil {
		return nil, fmt.Errorf("compile query schema: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	s := &Server{cfg: cfg, querier: q, schema: schema}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /chunks/{id}", s.handleChunk)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	return chain(mux, recoverer, requestLogger, cors(s.cfg.CORSOrigin))
}

// ListenAndServe serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}
	return s.srv.Shutdown(ctx)
}

type healthResponse struct {
	OK        bool `json:"ok"`
	IndexSize int  `json:"index_size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, IndexSize: s.querier.IndexSize(r.Context())})
}

type queryRequest struct {
	Q    string `json:"q"`
	TopK *int   `json:"top_k"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		writeDetail(w, http.StatusBadRequest, strings.Join(msgs, "; "))
		return
	}

	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	topK := rag.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	resp, err := s.querier.Query(r.Context(), req.Q, topK)
	if err != nil {
		status, detail := errorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("query failed", "status", status, "error", err)
		}
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorStatus maps pipeline errors to HTTP status codes and client-facing details.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, detailEmptyQuery
	case errors.Is(err, rag.ErrIndexUnavailable):
		return http.StatusInternalServerError, detailIndexUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, detailTimeout
	case errors.Is(err, rag.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, detailBackend
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if s.lineage == nil {
		writeDetail(w, http.StatusNotFound, detailChunkNotFound)
		return
	}
	l, err := s.lineage.GetChunk(r.Context(), r.PathValue("id"))
	if errors.Is(err, graph.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, detailChunkNotFound)
		return
	}
	if err != nil {
		slog.Error("chunk lookup failed", "id", r.PathValue("id"), "error", err)
		writeDetail(w, http.StatusInternalServerError, detailInternal)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
