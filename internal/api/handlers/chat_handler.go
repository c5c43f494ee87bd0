package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/services"
)

type ChatHandler struct {
	query *services.QueryService
	log   *logrus.Logger
}

func NewChatHandler(query *services.QueryService, log *logrus.Logger) *ChatHandler {
	return &ChatHandler{query: query, log: log}
}

type SimilarRequest struct {
	Vector []float32 `json:"vector"`
	Query  string    `json:"query"`
	Limit  int       `json:"limit"`
}

type AskRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *ChatHandler) SimilarSearch(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	results, err := h.query.Similar(r.Context(), req.Vector, req.Query, req.Limit)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (h *ChatHandler) QueryDocuments(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	answer, err := h.query.Ask(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
