package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vango-go/posecoach/pkg/gateway/config"
	"github.com/vango-go/posecoach/pkg/gateway/handlers"
	"github.com/vango-go/posecoach/pkg/gateway/live/session"
	"github.com/vango-go/posecoach/pkg/gateway/live/sessions"
	"github.com/vango-go/posecoach/pkg/gateway/metrics"
	"github.com/vango-go/posecoach/pkg/gateway/mw"
)

// History is the session summary store the server writes to and lists from.
type History interface {
	handlers.SummaryRecorder
	handlers.SummaryLister
}

type Options struct {
	Feedback session.FeedbackGenerator
	// History may be nil; /v1/sessions then reports history_disabled.
	History  History
	Sessions *sessions.Tracker
	// Metrics may be nil, which disables /metrics.
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	router chi.Router

	feedback session.FeedbackGenerator
	history  History
	sessions *sessions.Tracker
	metrics  *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = sessions.NewTracker()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   chi.NewRouter(),
		feedback: opts.Feedback,
		history:  opts.History,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
	}

	s.routes()
	return s
}

// NewHTTPClient returns the pooled client shared by all outbound model calls.
func NewHTTPClient(cfg config.Config) *http.Client {
	connectTimeout := cfg.UpstreamConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func (s *Server) routes() {
	r := s.router
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler { return mw.AccessLog(s.logger, next) })
	r.Use(func(next http.Handler) http.Handler { return mw.Instrument(s.metrics, next) })
	r.Use(func(next http.Handler) http.Handler { return mw.Recover(s.logger, next) })
	r.Use(func(next http.Handler) http.Handler { return mw.CORS(s.cfg, next) })

	r.NotFound(handlers.NotFoundHandler{}.ServeHTTP)
	r.MethodNotAllowed(handlers.MethodNotAllowedHandler{}.ServeHTTP)

	r.Method(http.MethodGet, "/", handlers.RootHandler{})
	r.Method(http.MethodGet, "/healthz", handlers.HealthHandler{})
	r.Method(http.MethodGet, "/readyz", handlers.ReadyHandler{Config: s.cfg, Sessions: s.sessions})

	r.Method(http.MethodGet, "/ws/pose-feedback", handlers.PoseFeedbackHandler{
		Config:   s.cfg,
		Feedback: s.feedback,
		Logger:   s.logger,
		Sessions: s.sessions,
		History:  s.recorder(),
		Metrics:  s.metrics,
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Method(http.MethodGet, "/", handlers.SessionsHandler{History: s.lister()})
		r.Method(http.MethodGet, "/live", handlers.LiveSessionsHandler{Sessions: s.sessions})
	})
}

// recorder and lister keep a nil store from becoming a non-nil interface.
func (s *Server) recorder() handlers.SummaryRecorder {
	if s.history == nil {
		return nil
	}
	return s.history
}

func (s *Server) lister() handlers.SummaryLister {
	if s.history == nil {
		return nil
	}
	return s.history
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the live-session tracker used for graceful drain.
func (s *Server) Sessions() *sessions.Tracker {
	return s.sessions
}
