package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/posecoach/pkg/feedback"
	"github.com/vango-go/posecoach/pkg/gateway/upstream"
)

// EnvConfigFile names an optional YAML file whose values sit between the
// built-in defaults and the environment.
const EnvConfigFile = "POSE_COACH_CONFIG_FILE"

type Config struct {
	Addr string

	// Text generation.
	Provider             string
	APIKey               string
	ProviderBaseURL      string
	Model                string
	Temperature          float64
	MaxTokens            int
	Persona              string
	FeedbackTimeout      time.Duration
	FeedbackRetries      int
	FeedbackRetryBackoff time.Duration
	FallbackFeedback     string

	// CORS; "*" allows any origin. Empty => only same-origin and non-browser clients.
	CORSAllowedOrigins map[string]struct{}

	// Live WebSocket (/ws/pose-feedback).
	WSMaxMessageBytes    int64
	WSPingInterval       time.Duration
	WSWriteTimeout       time.Duration
	WSReadTimeout        time.Duration
	WSMaxSessionDuration time.Duration
	WSInboundQueueSize   int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	// Session history; empty disables it.
	HistoryDBPath string

	// MetricsEnabled serves Prometheus collectors on /metrics.
	MetricsEnabled bool

	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads KEY=value pairs from path without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	file, err := loadFile(os.Getenv(EnvConfigFile))
	if err != nil {
		return Config{}, err
	}

	provider := strings.ToLower(envOr("POSE_COACH_PROVIDER", file.str(file.Provider, upstream.ProviderGroq)))
	cfg := Config{
		Addr:                          envOr("POSE_COACH_ADDR", file.str(file.Addr, ":8000")),
		Provider:                      provider,
		ProviderBaseURL:               envOr("POSE_COACH_PROVIDER_BASE_URL", file.str(file.ProviderBaseURL, "")),
		Model:                         envOr("POSE_COACH_MODEL", file.str(file.Model, upstream.DefaultModel(provider))),
		Temperature:                   envFloat64Or("POSE_COACH_TEMPERATURE", file.float(file.Temperature, feedback.DefaultTemperature)),
		MaxTokens:                     envIntOr("POSE_COACH_MAX_TOKENS", file.int(file.MaxTokens, feedback.DefaultMaxTokens)),
		Persona:                       envOr("POSE_COACH_PERSONA", file.str(file.Persona, feedback.DefaultPersona)),
		FeedbackTimeout:               envDurationOr("POSE_COACH_FEEDBACK_TIMEOUT", file.duration(file.FeedbackTimeout, feedback.DefaultTimeout)),
		FeedbackRetries:               envIntOr("POSE_COACH_FEEDBACK_RETRIES", file.int(file.FeedbackRetries, feedback.DefaultRetries)),
		FeedbackRetryBackoff:          envDurationOr("POSE_COACH_FEEDBACK_RETRY_BACKOFF", file.duration(file.FeedbackRetryBackoff, feedback.DefaultRetryBackoff)),
		FallbackFeedback:              envOr("POSE_COACH_FALLBACK_FEEDBACK", file.str(file.FallbackFeedback, feedback.FallbackText)),
		CORSAllowedOrigins:            make(map[string]struct{}),
		WSMaxMessageBytes:             envInt64Or("POSE_COACH_WS_MAX_MESSAGE_BYTES", int64(file.int(file.WSMaxMessageBytes, 64*1024))),
		WSPingInterval:                envDurationOr("POSE_COACH_WS_PING_INTERVAL", file.duration(file.WSPingInterval, 20*time.Second)),
		WSWriteTimeout:                envDurationOr("POSE_COACH_WS_WRITE_TIMEOUT", file.duration(file.WSWriteTimeout, 5*time.Second)),
		WSReadTimeout:                 envDurationOr("POSE_COACH_WS_READ_TIMEOUT", file.duration(file.WSReadTimeout, 0)),
		WSMaxSessionDuration:          envDurationOr("POSE_COACH_WS_MAX_DURATION", file.duration(file.WSMaxSessionDuration, 2*time.Hour)),
		WSInboundQueueSize:            envIntOr("POSE_COACH_WS_INBOUND_QUEUE", file.int(file.WSInboundQueueSize, 8)),
		ReadHeaderTimeout:             envDurationOr("POSE_COACH_READ_HEADER_TIMEOUT", file.duration(file.ReadHeaderTimeout, 10*time.Second)),
		ShutdownGracePeriod:           envDurationOr("POSE_COACH_SHUTDOWN_GRACE_PERIOD", file.duration(file.ShutdownGracePeriod, 30*time.Second)),
		UpstreamConnectTimeout:        envDurationOr("POSE_COACH_CONNECT_TIMEOUT", file.duration(file.UpstreamConnectTimeout, 5*time.Second)),
		UpstreamResponseHeaderTimeout: envDurationOr("POSE_COACH_RESPONSE_HEADER_TIMEOUT", file.duration(file.UpstreamResponseHeaderTimeout, 30*time.Second)),
		HistoryDBPath:                 envOr("POSE_COACH_HISTORY_DB", file.str(file.HistoryDBPath, "")),
		MetricsEnabled:                envBoolOr("POSE_COACH_METRICS_ENABLED", file.bool(file.MetricsEnabled, true)),
		LogLevel:                      strings.ToLower(envOr("POSE_COACH_LOG_LEVEL", file.str(file.LogLevel, "info"))),
		LogFormat:                     strings.ToLower(envOr("POSE_COACH_LOG_FORMAT", file.str(file.LogFormat, "text"))),
	}

	origins := file.CORSOrigins
	if raw := os.Getenv("POSE_COACH_CORS_ORIGINS"); strings.TrimSpace(raw) != "" {
		origins = splitCSV(raw)
	}
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins[origin] = struct{}{}
		}
	}

	keyVar := upstream.KeyEnvVar(cfg.Provider)
	if keyVar == "" {
		return Config{}, fmt.Errorf("POSE_COACH_PROVIDER must be one of %s", strings.Join(upstream.Providers, "|"))
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv(keyVar))
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("%s must be set when POSE_COACH_PROVIDER=%s", keyVar, cfg.Provider)
	}

	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("POSE_COACH_MODEL must not be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 || math.IsNaN(cfg.Temperature) {
		return Config{}, fmt.Errorf("POSE_COACH_TEMPERATURE must be within [0, 2]")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_MAX_TOKENS must be > 0")
	}
	if cfg.FeedbackTimeout <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_FEEDBACK_TIMEOUT must be > 0")
	}
	if cfg.FeedbackRetries < 0 {
		return Config{}, fmt.Errorf("POSE_COACH_FEEDBACK_RETRIES must be >= 0")
	}
	if cfg.FeedbackRetryBackoff <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_FEEDBACK_RETRY_BACKOFF must be > 0")
	}
	if strings.TrimSpace(cfg.FallbackFeedback) == "" {
		return Config{}, fmt.Errorf("POSE_COACH_FALLBACK_FEEDBACK must not be empty")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSReadTimeout > 0 && cfg.WSReadTimeout <= cfg.WSPingInterval {
		return Config{}, fmt.Errorf("POSE_COACH_WS_READ_TIMEOUT must exceed POSE_COACH_WS_PING_INTERVAL")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSInboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_WS_INBOUND_QUEUE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("POSE_COACH_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("POSE_COACH_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case "text", "json", "logfmt":
	default:
		return Config{}, fmt.Errorf("POSE_COACH_LOG_FORMAT must be one of text|json|logfmt")
	}

	return cfg, nil
}

// AllowsAnyOrigin reports whether CORS is configured with "*".
func (c Config) AllowsAnyOrigin() bool {
	_, ok := c.CORSAllowedOrigins["*"]
	return ok
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
