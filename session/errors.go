package session

import (
	"errors"

	"webrag/crawler"
)

var (
	ErrNoContent       = errors.New("no content could be extracted from this website")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrInvalidURL      = crawler.ErrInvalidURL
)
