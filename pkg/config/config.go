package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects and configures the generation backend
type LLMConfig struct {
	// Provider is "gemini" or "openai"
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model when set
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`
}

// ClassifierConfig configures the ml harmful-content backend
type ClassifierConfig struct {
	// APIKeyEnv names the environment variable holding the API key.
	// Empty means no ML backend: ml-strategy detectors fall back to the
	// keyword scorer.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// RedisConfig contains connection settings for Redis
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Duration wraps time.Duration so YAML can carry values like "30m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// AsDuration returns the wrapped time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// SessionConfig bounds the follow-up context store
type SessionConfig struct {
	// Backend is "memory" or "redis"
	Backend     string      `yaml:"backend"`
	MaxSessions int         `yaml:"max_sessions"`
	MaxTurns    int         `yaml:"max_turns"`
	TTL         Duration    `yaml:"ttl"`
	Redis       RedisConfig `yaml:"redis,omitempty"`
}

// Config is the server configuration loaded once at startup
type Config struct {
	ListenAddr    string           `yaml:"listen_addr"`
	Debug         bool             `yaml:"debug"`
	LogLevel      string           `yaml:"log_level"`
	PolicyPath    string           `yaml:"policy_path"`
	AuditLogPath  string           `yaml:"audit_log_path"`
	SystemMessage string           `yaml:"system_message,omitempty"`
	LLM           LLMConfig        `yaml:"llm"`
	Classifier    ClassifierConfig `yaml:"classifier"`
	Session       SessionConfig    `yaml:"session"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		PolicyPath:   "policy.json",
		AuditLogPath: "prompt_shield.log",
		LLM: LLMConfig{
			Provider:  "gemini",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Classifier: ClassifierConfig{
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Session: SessionConfig{
			Backend:     "memory",
			MaxSessions: 1000,
			MaxTurns:    20,
			TTL:         Duration(time.Hour),
		},
	}
}

// LoadFromFile loads configuration from a YAML file, filling omitted
// fields with defaults. An empty path returns the defaults.
func LoadFromFile(filePath string) (*Config, error) {
	cfg := DefaultConfig()
	if filePath == "" {
		return cfg, nil
	}

	if !isValidFilePath(filePath) {
		return nil, fmt.Errorf("invalid config file path")
	}

	data, err := os.ReadFile(filePath) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}

	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend: %q", c.Session.Backend)
	}

	if c.Session.Backend == "redis" && c.Session.Redis.Addr == "" {
		return fmt.Errorf("session backend redis requires redis.addr")
	}
	return nil
}

// APIKey resolves the LLM API key from the environment
func (c *LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// APIKey resolves the classifier API key from the environment
func (c *ClassifierConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// isValidFilePath checks if a file path is valid and safe
func isValidFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	cleanPath := filepath.Clean(filePath)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return false
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return false
	}

	if strings.HasPrefix(absPath, "/proc") ||
		strings.HasPrefix(absPath, "/sys") ||
		strings.HasPrefix(absPath, "/dev") {
		return false
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return false
	}

	return fileInfo.Mode().IsRegular()
}
