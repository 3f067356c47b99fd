package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL      = "http://localhost:8000"
	defaultReconnectDelay = 5 * time.Second
	defaultSilenceDelay   = 2500 * time.Millisecond
	defaultDisplayLimit   = 100
	defaultHTTPTimeout    = 30 * time.Second

	// FileName is the optional YAML file read from the home directory.
	FileName = "config.yaml"
)

type Config struct {
	// ServerURL is the base URL of the mission backend HTTP API.
	ServerURL string
	// WebSocketURL is the event channel endpoint. Derived from ServerURL
	// when not set.
	WebSocketURL string

	// ReconnectDelay is the fixed pause before redialing the event channel.
	ReconnectDelay time.Duration
	// SilenceDelay is how long voice capture waits without recognition
	// updates before it submits.
	SilenceDelay time.Duration
	// DisplayLimit bounds the transcript preview, in runes.
	DisplayLimit int
	// HTTPTimeout bounds each backend request.
	HTTPTimeout time.Duration

	// Home is the directory where mission keeps local state.
	Home string
	// AccessToken is an optional bearer token for the backend.
	AccessToken string
	// TokenFile is the path of the stored access token.
	TokenFile string

	// LogLevel is the minimum log level name.
	LogLevel string
	// Debug enables verbose logging.
	Debug bool
}

// fileConfig mirrors Config in the YAML file. Durations use Go syntax
// ("5s", "2500ms").
type fileConfig struct {
	ServerURL      string `yaml:"server_url"`
	WebSocketURL   string `yaml:"websocket_url"`
	ReconnectDelay string `yaml:"reconnect_delay"`
	SilenceDelay   string `yaml:"silence_delay"`
	DisplayLimit   int    `yaml:"display_limit"`
	HTTPTimeout    string `yaml:"http_timeout"`
	AccessToken    string `yaml:"access_token"`
	LogLevel       string `yaml:"log_level"`
	Debug          *bool  `yaml:"debug"`
}

// Load loads configuration from defaults, the optional config file in the
// home directory, then the environment. Later sources win.
func Load() (*Config, error) {
	home := getenvFirst("MISSION_HOME", "DROID_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".mission")
	}

	cfg := &Config{
		ServerURL:      defaultServerURL,
		ReconnectDelay: defaultReconnectDelay,
		SilenceDelay:   defaultSilenceDelay,
		DisplayLimit:   defaultDisplayLimit,
		HTTPTimeout:    defaultHTTPTimeout,
		Home:           home,
		TokenFile:      filepath.Join(home, "access.token"),
		LogLevel:       "info",
	}

	if err := cfg.loadFile(filepath.Join(home, FileName)); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.WebSocketURL == "" {
		wsURL, err := DeriveWebSocketURL(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.WebSocketURL = wsURL
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// Save creates the home directory.
func (c *Config) Save() error {
	return os.MkdirAll(c.Home, 0700)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&c.ServerURL, fc.ServerURL)
	setString(&c.WebSocketURL, fc.WebSocketURL)
	setString(&c.AccessToken, fc.AccessToken)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.DisplayLimit > 0 {
		c.DisplayLimit = fc.DisplayLimit
	}
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"reconnect_delay", fc.ReconnectDelay, &c.ReconnectDelay},
		{"silence_delay", fc.SilenceDelay, &c.SilenceDelay},
		{"http_timeout", fc.HTTPTimeout, &c.HTTPTimeout},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("%s: %s: %w", path, d.key, err)
		}
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.ServerURL, getenvFirst("MISSION_SERVER_URL", "DROID_SERVER_URL"))
	setString(&c.WebSocketURL, getenvFirst("MISSION_WS_URL", "DROID_WS_URL"))
	setString(&c.AccessToken, getenvFirst("MISSION_ACCESS_TOKEN", "DROID_ACCESS_TOKEN"))
	setString(&c.LogLevel, getenvFirst("MISSION_LOG_LEVEL", "DROID_LOG_LEVEL"))

	if raw := getenvFirst("MISSION_DISPLAY_LIMIT", "DROID_DISPLAY_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MISSION_DISPLAY_LIMIT %q", raw)
		}
		c.DisplayLimit = n
	}

	if err := setDuration(&c.ReconnectDelay, getenvFirst("MISSION_RECONNECT_DELAY", "DROID_RECONNECT_DELAY")); err != nil {
		return fmt.Errorf("MISSION_RECONNECT_DELAY: %w", err)
	}
	if err := setDuration(&c.SilenceDelay, getenvFirst("MISSION_SILENCE_DELAY", "DROID_SILENCE_DELAY")); err != nil {
		return fmt.Errorf("MISSION_SILENCE_DELAY: %w", err)
	}
	if err := setDuration(&c.HTTPTimeout, getenvFirst("MISSION_HTTP_TIMEOUT", "DROID_HTTP_TIMEOUT")); err != nil {
		return fmt.Errorf("MISSION_HTTP_TIMEOUT: %w", err)
	}

	if isTrue(os.Getenv("DEBUG")) || isTrue(getenvFirst("MISSION_DEBUG", "DROID_DEBUG")) {
		c.Debug = true
	}
	return nil
}

// DeriveWebSocketURL maps an http(s) server URL to its ws(s) event channel
// endpoint on the same host.
func DeriveWebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func setString(dst *string, val string) {
	if val = strings.TrimSpace(val); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", raw)
	}
	*dst = d
	return nil
}

func isTrue(val string) bool {
	return val == "true" || val == "1"
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}
