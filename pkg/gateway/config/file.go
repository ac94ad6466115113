package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the optional YAML file. Unset keys keep the
// built-in default. Durations use Go syntax ("15s", "2h").
type fileConfig struct {
	Addr string `yaml:"addr"`

	Provider             string   `yaml:"provider"`
	ProviderBaseURL      string   `yaml:"provider_base_url"`
	Model                string   `yaml:"model"`
	Temperature          *float64 `yaml:"temperature"`
	MaxTokens            *int     `yaml:"max_tokens"`
	Persona              string   `yaml:"persona"`
	FeedbackTimeout      string   `yaml:"feedback_timeout"`
	FeedbackRetries      *int     `yaml:"feedback_retries"`
	FeedbackRetryBackoff string   `yaml:"feedback_retry_backoff"`
	FallbackFeedback     string   `yaml:"fallback_feedback"`

	CORSOrigins []string `yaml:"cors_origins"`

	WSMaxMessageBytes    *int   `yaml:"ws_max_message_bytes"`
	WSPingInterval       string `yaml:"ws_ping_interval"`
	WSWriteTimeout       string `yaml:"ws_write_timeout"`
	WSReadTimeout        string `yaml:"ws_read_timeout"`
	WSMaxSessionDuration string `yaml:"ws_max_session_duration"`
	WSInboundQueueSize   *int   `yaml:"ws_inbound_queue"`

	ReadHeaderTimeout             string `yaml:"read_header_timeout"`
	ShutdownGracePeriod           string `yaml:"shutdown_grace_period"`
	UpstreamConnectTimeout        string `yaml:"upstream_connect_timeout"`
	UpstreamResponseHeaderTimeout string `yaml:"upstream_response_header_timeout"`

	HistoryDBPath  string `yaml:"history_db"`
	MetricsEnabled *bool  `yaml:"metrics_enabled"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	path = strings.TrimSpace(path)
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", EnvConfigFile, path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", EnvConfigFile, path, err)
	}
	if err := fc.validateDurations(); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", EnvConfigFile, path, err)
	}
	return fc, nil
}

func (fc *fileConfig) validateDurations() error {
	fields := map[string]string{
		"feedback_timeout":                 fc.FeedbackTimeout,
		"feedback_retry_backoff":           fc.FeedbackRetryBackoff,
		"ws_ping_interval":                 fc.WSPingInterval,
		"ws_write_timeout":                 fc.WSWriteTimeout,
		"ws_read_timeout":                  fc.WSReadTimeout,
		"ws_max_session_duration":          fc.WSMaxSessionDuration,
		"read_header_timeout":              fc.ReadHeaderTimeout,
		"shutdown_grace_period":            fc.ShutdownGracePeriod,
		"upstream_connect_timeout":         fc.UpstreamConnectTimeout,
		"upstream_response_header_timeout": fc.UpstreamResponseHeaderTimeout,
	}
	for key, raw := range fields {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s: invalid duration %q", key, raw)
		}
	}
	return nil
}

func (fc *fileConfig) str(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func (fc *fileConfig) int(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (fc *fileConfig) bool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (fc *fileConfig) float(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (fc *fileConfig) duration(v string, def time.Duration) time.Duration {
	if strings.TrimSpace(v) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
