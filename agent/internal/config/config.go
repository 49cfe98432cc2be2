package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIServer      = "http://volta.azuya.studio"
	DefaultRetry          = 1
	DefaultTimeRetry      = 2
	DefaultRequestTimeout = 10 * time.Second
	DefaultHostURL        = "http://localhost:5000"
	DefaultLogLevel       = "info"
)

// Config is the top-level agent configuration.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
	Host  HostConfig  `yaml:"host"`
	Log   LogConfig   `yaml:"log"`
}

// AgentConfig holds the Volta service settings.
type AgentConfig struct {
	// APIServer is the base URL of the Volta monitoring service.
	APIServer string `yaml:"api_server"`

	// APIToken is the bearer credential. It doubles as the AES key for the
	// device identifier, so it must be 16, 24 or 32 bytes long.
	APIToken string `yaml:"api_token"`

	// APITokenEnv names an environment variable holding the credential.
	// Used only when APIToken is empty.
	APITokenEnv string `yaml:"api_token_env"`

	// Retry is the maximum number of delivery attempts per report.
	Retry int `yaml:"retry"`

	// TimeRetry is the number of seconds to wait between attempts.
	TimeRetry int `yaml:"time_retry"`

	// RequestTimeout bounds each HTTP request to the service.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Token returns the credential, resolving APITokenEnv when APIToken is unset.
func (a AgentConfig) Token() string {
	if a.APIToken != "" {
		return a.APIToken
	}
	if a.APITokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(a.APITokenEnv))
}

// RetryDelay returns TimeRetry as a duration.
func (a AgentConfig) RetryDelay() time.Duration {
	return time.Duration(a.TimeRetry) * time.Second
}

// HostConfig describes the printer host the agent observes.
type HostConfig struct {
	// URL is the host's base URL, e.g. http://localhost:5000.
	URL string `yaml:"url"`

	// APIKeyEnv names the environment variable holding the host API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Port is the listen port embedded in the device address.
	// Zero means the port of URL.
	Port int `yaml:"port"`

	// MetricsEndpoint, when set, is a Prometheus exposition URL used for
	// temperatures and job progress instead of the REST API.
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// APIKey returns the host API key resolved from the environment.
func (h HostConfig) APIKey() string {
	if h.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(h.APIKeyEnv))
}

// ListenPort returns Port, or the port of URL when Port is zero. Scheme
// defaults apply when URL carries no explicit port.
func (h HostConfig) ListenPort() int {
	if h.Port > 0 {
		return h.Port
	}
	u, err := url.Parse(h.URL)
	if err != nil {
		return 0
	}
	if p := u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

// LogConfig controls the agent's log output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config holding only default values.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			APIServer:      DefaultAPIServer,
			Retry:          DefaultRetry,
			TimeRetry:      DefaultTimeRetry,
			RequestTimeout: DefaultRequestTimeout,
		},
		Host: HostConfig{
			URL: DefaultHostURL,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if err := checkURL("agent.api_server", cfg.Agent.APIServer); err != nil {
		return err
	}
	if cfg.Agent.Retry < 1 {
		return fmt.Errorf("agent.retry must be at least 1")
	}
	if cfg.Agent.TimeRetry < 0 {
		return fmt.Errorf("agent.time_retry must not be negative")
	}
	if cfg.Agent.RequestTimeout <= 0 {
		return fmt.Errorf("agent.request_timeout must be positive")
	}
	if err := checkURL("host.url", cfg.Host.URL); err != nil {
		return err
	}
	if cfg.Host.Port < 0 || cfg.Host.Port > 65535 {
		return fmt.Errorf("host.port %d out of range", cfg.Host.Port)
	}
	if cfg.Host.MetricsEndpoint != "" {
		if err := checkURL("host.metrics_endpoint", cfg.Host.MetricsEndpoint); err != nil {
			return err
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}
