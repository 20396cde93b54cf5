// Package config provides configuration loading, validation, and management
// for the assistant.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig() returns the config BY VALUE (copy, not reference) to
// prevent external mutation; all updates go through LoadConfig. State
// (watermarks, cycle history) belongs in the database, never in config.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/common/model"

	"assistant/pkg/logx"
)

// Oracle provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Default model per provider.
const (
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOllamaModel    = "llama3.1:8b"
)

// API key environment variables. Keys never live in the config file.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvTokenKey     = "ASSISTANT_TOKEN_KEY" // 32-byte hex key for token encryption
)

// OracleConfig selects and tunes the scoring oracle.
type OracleConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	OllamaHost  string  `json:"ollama_host,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// AgentConfig tunes the monitor loop and its guards.
type AgentConfig struct {
	MonitorInterval      model.Duration `json:"monitor_interval"`
	CalendarLookahead    model.Duration `json:"calendar_lookahead"`
	TravelBuffer         model.Duration `json:"travel_buffer"`
	ResponseWindow       model.Duration `json:"response_window"`
	InteractionThreshold string         `json:"interaction_urgency_threshold"`
	ErrorBackoffBase     model.Duration `json:"error_backoff_base"`
	ErrorBackoffCap      model.Duration `json:"error_backoff_cap"`
	ScoringWorkers       int            `json:"scoring_workers"`
	DraftInsteadOfSend   bool           `json:"draft_instead_of_send"`
	EmailLookbackOnStart model.Duration `json:"email_lookback_on_start"`
}

// VoiceConfig points at the telephony gateway. Empty URL means console only.
type VoiceConfig struct {
	GatewayURL  string         `json:"gateway_url,omitempty"`
	DialTimeout model.Duration `json:"dial_timeout"`
}

// WebConfig configures the dashboard HTTP server. PrometheusURL points at
// a Prometheus that scrapes /metrics; empty disables the usage endpoint.
type WebConfig struct {
	Addr          string `json:"addr"`
	PrometheusURL string `json:"prometheus_url,omitempty"`
}

// Config represents the main configuration for the assistant.
type Config struct {
	Oracle OracleConfig `json:"oracle"`
	Agent  AgentConfig  `json:"agent"`
	Voice  VoiceConfig  `json:"voice"`
	Web    WebConfig    `json:"web"`
	DBPath string       `json:"db_path"`
	Demo   bool         `json:"demo"`
}

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	logger *logx.Logger
	mu     sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// DefaultConfig returns the built-in defaults, used when no config file
// exists and as the base the file is merged over.
func DefaultConfig() Config {
	return Config{
		Oracle: OracleConfig{
			Provider:    ProviderGemini,
			Model:       DefaultGeminiModel,
			OllamaHost:  "http://localhost:11434",
			MaxTokens:   800,
			Temperature: 0.1,
		},
		Agent: AgentConfig{
			MonitorInterval:      model.Duration(5 * time.Minute),
			CalendarLookahead:    model.Duration(7 * 24 * time.Hour),
			TravelBuffer:         model.Duration(15 * time.Minute),
			ResponseWindow:       model.Duration(5 * time.Minute),
			InteractionThreshold: string(UrgencyThresholdDefault),
			ErrorBackoffBase:     model.Duration(30 * time.Second),
			ErrorBackoffCap:      model.Duration(10 * time.Minute),
			ScoringWorkers:       4,
			EmailLookbackOnStart: model.Duration(24 * time.Hour),
		},
		Voice: VoiceConfig{
			DialTimeout: model.Duration(15 * time.Second),
		},
		Web: WebConfig{
			Addr: "localhost:8085",
		},
		DBPath: "assistant.db",
	}
}

// UrgencyThresholdDefault is the urgency at which the agent places a call.
// The fallback scorer tops out at "high", so with the default threshold
// fallback-only items trigger interaction through conflicts alone.
const UrgencyThresholdDefault = "critical"

// LoadConfig reads the config file and installs the global instance.
// A missing file installs the defaults.
func LoadConfig(path string) error {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			getLogger().Info("No config file at %s, using defaults", path)
		case err != nil:
			return fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	getLogger().Info("Config loaded: provider=%s model=%s interval=%s",
		cfg.Oracle.Provider, cfg.Oracle.Model, cfg.Agent.MonitorInterval)
	return nil
}

// GetConfig returns a copy of the current config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded: call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTest installs a config directly. Test use only.
func SetConfigForTest(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	config = &cfg
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderMock:
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.MaxTokens <= 0 {
		return fmt.Errorf("oracle max_tokens must be positive")
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle temperature must be in [0,2]")
	}
	if time.Duration(c.Agent.MonitorInterval) <= 0 {
		return fmt.Errorf("monitor_interval must be positive")
	}
	if time.Duration(c.Agent.ResponseWindow) <= 0 {
		return fmt.Errorf("response_window must be positive")
	}
	if time.Duration(c.Agent.TravelBuffer) < 0 {
		return fmt.Errorf("travel_buffer must not be negative")
	}
	if c.Agent.ScoringWorkers <= 0 {
		return fmt.Errorf("scoring_workers must be positive")
	}
	switch c.Agent.InteractionThreshold {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("unknown interaction_urgency_threshold %q", c.Agent.InteractionThreshold)
	}
	if time.Duration(c.Agent.ErrorBackoffBase) <= 0 ||
		time.Duration(c.Agent.ErrorBackoffCap) < time.Duration(c.Agent.ErrorBackoffBase) {
		return fmt.Errorf("error backoff base must be positive and cap >= base")
	}
	return nil
}

// OracleAPIKey resolves the API key for the configured provider from the
// environment. Ollama and mock need no key.
func (c *Config) OracleAPIKey() (string, error) {
	var env string
	switch c.Oracle.Provider {
	case ProviderAnthropic:
		env = EnvAnthropicKey
	case ProviderOpenAI:
		env = EnvOpenAIKey
	case ProviderGemini:
		env = EnvGeminiKey
	case ProviderOllama, ProviderMock:
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s not set for provider %s", env, c.Oracle.Provider)
	}
	return key, nil
}

// TokenEncryptionKey resolves the 32-byte secretbox key for stored OAuth
// tokens from the environment.
func TokenEncryptionKey() (*[32]byte, error) {
	raw := os.Getenv(EnvTokenKey)
	if raw == "" {
		return nil, fmt.Errorf("%s not set", EnvTokenKey)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", EnvTokenKey, err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", EnvTokenKey, len(decoded))
	}
	var key [32]byte
	copy(key[:], decoded)
	return &key, nil
}
