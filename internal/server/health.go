package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the response from the probe endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves readiness, liveness and component checks. The
// lightweight /health endpoint belongs to the API.
type HealthServer struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
}

// NewHealthServer creates a health server that is live but not yet ready.
func NewHealthServer(version string) *HealthServer {
	return &HealthServer{
		checks:  make(map[string]HealthChecker),
		version: version,
		live:    true,
	}
}

// RegisterCheck adds a health check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady marks the server as ready to accept traffic.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetLive marks the server as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Register mounts the probe endpoints on mux.
func (s *HealthServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleChecks)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /readyz", s.handleReady) // Kubernetes alias
	mux.HandleFunc("GET /live", s.handleLive)
	mux.HandleFunc("GET /livez", s.handleLive) // Kubernetes alias
}

// handleChecks runs every registered check.
func (s *HealthServer) handleChecks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	version := s.version
	s.mu.RUnlock()
	sort.Strings(names)

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}

	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	probe(w, ready)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	probe(w, live)
}

func probe(w http.ResponseWriter, ok bool) {
	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if !ok {
		response.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// Common health checkers

// IndexHealthChecker reports the vector index; an empty index is unhealthy
// because every query would fail.
func IndexHealthChecker(backend string, sizeFn func(ctx context.Context) int) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		n := sizeFn(ctx)
		details := map[string]string{"backend": backend, "chunks": strconv.Itoa(n)}
		if n == 0 {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "Search index not available",
				Details: details,
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "Index loaded", Details: details}
	}
}

// DependencyHealthChecker wraps a connectivity check of an external store.
// Failures degrade rather than fail the service when optional is set.
func DependencyHealthChecker(name string, optional bool, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			status := HealthStatusUnhealthy
			if optional {
				status = HealthStatusDegraded
			}
			return HealthCheck{Status: status, Message: name + " connection failed: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: name + " connection OK"}
	}
}

// LLMHealthChecker reports which answer backend is in use. Without a provider
// answers are extractive, which is a degraded mode.
func LLMHealthChecker(providerName string, configured bool) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if !configured {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "No LLM configured; answers quote policy excerpts",
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider configured",
			Details: map[string]string{"provider": providerName},
		}
	}
}

// CacheHealthChecker exposes cache statistics.
func CacheHealthChecker(statsFn func() map[string]string) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy, Message: "Cache OK", Details: statsFn()}
	}
}
