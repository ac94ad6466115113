package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/posecoach/internal/history"
	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/gateway/live/sessions"
)

// SummaryLister reads finished session summaries.
type SummaryLister interface {
	Recent(ctx context.Context, limit int) ([]history.Summary, error)
}

// SessionsHandler serves GET /v1/sessions: recently finished sessions,
// newest first.
type SessionsHandler struct {
	History SummaryLister
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.History == nil {
		writeError(w, r, &core.Error{Type: core.ErrNotFound, Message: "session history is not enabled", Code: "history_disabled"})
		return
	}

	limit := history.DefaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("limit must be a positive integer", "limit"))
			return
		}
		limit = min(n, history.MaxLimit)
	}

	summaries, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// LiveSessionsHandler serves GET /v1/sessions/live: connections currently open.
type LiveSessionsHandler struct {
	Sessions *sessions.Tracker
}

func (h LiveSessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	live := []sessions.Info{}
	if h.Sessions != nil {
		live = h.Sessions.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": live,
		"draining": h.Sessions != nil && h.Sessions.IsDraining(),
	})
}
