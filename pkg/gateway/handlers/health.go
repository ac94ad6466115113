package handlers

import (
	"net/http"
	"strings"

	"github.com/vango-go/posecoach/pkg/gateway/config"
	"github.com/vango-go/posecoach/pkg/gateway/live/sessions"
)

// RootHandler reports that the service is up, in the shape existing clients poll.
type RootHandler struct{}

func (h RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "PoseCoach API is running"})
}

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Sessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Provider       string   `json:"provider"`
		Model          string   `json:"model"`
		Draining       bool     `json:"draining"`
		LiveSessions   int      `json:"live_sessions"`
		HistoryEnabled bool     `json:"history_enabled"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.APIKey) == "" {
		issues = append(issues, "provider api key is not configured")
	}
	if strings.TrimSpace(h.Config.Model) == "" {
		issues = append(issues, "model is not configured")
	}
	if h.Config.FeedbackTimeout <= 0 {
		issues = append(issues, "feedback timeout must be > 0")
	}
	if h.Config.WSMaxMessageBytes <= 0 {
		issues = append(issues, "ws max message bytes must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.UpstreamConnectTimeout <= 0 || h.Config.UpstreamResponseHeaderTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}

	draining := false
	live := 0
	if h.Sessions != nil {
		draining = h.Sessions.IsDraining()
		live = h.Sessions.Count()
	}
	if draining {
		issues = append(issues, "server is draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	} else if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:             ok,
		Provider:       h.Config.Provider,
		Model:          h.Config.Model,
		Draining:       draining,
		LiveSessions:   live,
		HistoryEnabled: h.Config.HistoryDBPath != "",
		Issues:         issues,
	})
}
