package rag

import (
	"errors"

	"github.com/efebarandurmaz/hrrag/internal/embedding"
)

var (
	// ErrInvalidInput is returned for an empty or whitespace-only question.
	ErrInvalidInput = errors.New("empty query")

	// ErrIndexUnavailable means the vector index is missing, empty or failed.
	ErrIndexUnavailable = errors.New("search index not available")

	// ErrBackendUnavailable means the query could not be embedded.
	ErrBackendUnavailable = embedding.ErrBackendUnavailable
)
