package api

import (
	"context"
	"errors"
	"net/http"

	"webrag/index"
	"webrag/pkg/embedding"
	"webrag/session"
)

const (
	msgNoContent       = "No content could be extracted from this website."
	msgInvalidURL      = "A valid http(s) URL is required."
	msgInvalidBody     = "Invalid request body."
	msgEmptyQuestion   = "Question cannot be empty."
	msgSessionNotFound = "Session not found. Index a website first."
	msgEmbedding       = "Embedding provider is unavailable."
	msgTimeout         = "The request timed out."
	msgInternal        = "Internal server error."
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// errorHandler writes a response for err and reports whether it did.
type errorHandler func(w http.ResponseWriter, err error) bool

func sentinelHandler(sentinel error, status int, detail string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, detail)
		return true
	}
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(session.ErrNoContent, http.StatusBadRequest, msgNoContent),
		sentinelHandler(index.ErrEmptyInput, http.StatusBadRequest, msgNoContent),
		sentinelHandler(session.ErrInvalidURL, http.StatusBadRequest, msgInvalidURL),
		sentinelHandler(session.ErrEmptyQuestion, http.StatusBadRequest, msgEmptyQuestion),
		sentinelHandler(session.ErrSessionNotFound, http.StatusNotFound, msgSessionNotFound),
		sentinelHandler(embedding.ErrProviderInit, http.StatusBadGateway, msgEmbedding),
		sentinelHandler(embedding.ErrDimensionMismatch, http.StatusBadGateway, msgEmbedding),
		sentinelHandler(embedding.ErrEmptyResponse, http.StatusBadGateway, msgEmbedding),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, msgTimeout),
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
