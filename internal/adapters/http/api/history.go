// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reputor/reputor/internal/domain/model"
)

// HistoryHandler handles audit history read requests.
type HistoryHandler struct {
	deps Dependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// historyEntryResponse is the audit contract row.
type historyEntryResponse struct {
	PreviousValue float64   `json:"previous_value"`
	NewValue      float64   `json:"new_value"`
	Delta         float64   `json:"delta"`
	Reason        string    `json:"reason"`
	TriggeredBy   string    `json:"triggered_by"`
	Trigger       string    `json:"trigger"`
	Timestamp     time.Time `json:"timestamp"`
}

// HandleGetHistory handles GET /history/{subject_id}?kind=&limit= requests.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	subjectID := strings.TrimPrefix(r.URL.Path, "/history/")
	if subjectID == "" || strings.Contains(subjectID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	kind := model.ScoreKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.KindTrust
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		limit = n
	}

	sbx, err := sandboxFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	entries, err := h.deps.History(r.Context(), subjectID, kind, limit, sbx)
	if err != nil {
		translateError(w, err)
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			PreviousValue: e.Previous,
			NewValue:      e.New,
			Delta:         e.Delta,
			Reason:        e.Reason,
			TriggeredBy:   e.TriggeredBy,
			Trigger:       string(e.Trigger),
			Timestamp:     e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
