package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"webrag/pkg/logger"
	"webrag/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type indexRequest struct {
	URL string `json:"url"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type historyResponse struct {
	History []session.Turn `json:"history"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// indexSite handles POST /api/index.
func (s *Server) indexSite(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, msgInvalidURL)
		return
	}

	res, err := s.sessions.Create(r.Context(), req.URL)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// chat handles POST /api/chat.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.sessions.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if res.History == nil {
		res.History = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// sessionHistory handles GET /api/sessions/{id}/history.
func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.sessions.History(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if history == nil {
		history = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{History: history})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Info("request failed", zap.String("path", r.URL.Path), zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msgInternal)
}
