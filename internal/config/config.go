package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds the splask gateway configuration. It is read once at startup
// and never mutated afterwards; request handling only ever sees copies.
type Config struct {
	Env      string `env:"ENV" env-default:"local"`
	LogLevel string `env:"LOG_LEVEL" env-default:""`

	HTTP   HTTPConfig
	OpenAI OpenAIConfig
	Splunk SplunkConfig
	Ask    AskConfig
	Auth   AuthConfig
}

// HTTPConfig holds inbound HTTP server settings.
type HTTPConfig struct {
	Port            int `env:"HTTP_PORT" env-default:"8080"`
	ReadTimeoutSec  int `env:"HTTP_READ_TIMEOUT_SEC" env-default:"10"`
	WriteTimeoutSec int `env:"HTTP_WRITE_TIMEOUT_SEC" env-default:"150"`
	ShutdownSec     int `env:"HTTP_SHUTDOWN_TIMEOUT_SEC" env-default:"10"`
}

// OpenAIConfig holds Azure OpenAI connection settings.
type OpenAIConfig struct {
	Endpoint   string `env:"AZURE_OPENAI_ENDPOINT" env-required:"true"`
	APIKey     string `env:"AZURE_OPENAI_KEY" env-required:"true"`
	Deployment string `env:"AZURE_OPENAI_DEPLOYMENT" env-default:"gpt-35-turbo"`
	APIVersion string `env:"AZURE_OPENAI_API_VERSION" env-default:"2024-02-15-preview"`
}

// SplunkConfig holds search platform connection settings.
type SplunkConfig struct {
	Host            string `env:"SPLUNK_HOST" env-required:"true"`
	Port            int    `env:"SPLUNK_PORT" env-default:"8089"`
	Username        string `env:"SPLUNK_USERNAME" env-required:"true"`
	Password        string `env:"SPLUNK_PASSWORD" env-required:"true"`
	Scheme          string `env:"SPLUNK_SCHEME" env-default:"https"`
	VerifySSL       bool   `env:"SPLUNK_VERIFY_SSL" env-default:"true"`
	TimeoutSec      int    `env:"SPLUNK_REQUEST_TIMEOUT" env-default:"60"`
	PollIntervalSec int    `env:"SPLUNK_POLL_INTERVAL" env-default:"2"`
}

// AskConfig holds orchestration settings for the question pipeline.
type AskConfig struct {
	// SummaryMaxResults caps how many result records are embedded in the
	// summarization prompt. Truncation is deterministic: always the first N.
	SummaryMaxResults int `env:"SUMMARY_MAX_RESULTS" env-default:"20"`
	// RetryAttempts is the total attempt count per stage for transient upstream
	// failures. 1 means no retry.
	RetryAttempts   int `env:"RETRY_ATTEMPTS" env-default:"1"`
	RetryBackoffSec int `env:"RETRY_BACKOFF_SEC" env-default:"1"`
}

// AuthConfig holds API authentication settings. An empty key list disables auth.
type AuthConfig struct {
	APIKeys []string `env:"API_KEYS"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Splunk.Port <= 0 || c.Splunk.Port > 65535 {
		return fmt.Errorf("splunk port must be between 1 and 65535, got %d", c.Splunk.Port)
	}
	switch c.Splunk.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("splunk scheme must be \"http\" or \"https\", got %q", c.Splunk.Scheme)
	}
	if c.Splunk.TimeoutSec <= 0 {
		return fmt.Errorf("splunk request timeout must be positive, got %d", c.Splunk.TimeoutSec)
	}
	if c.Splunk.PollIntervalSec <= 0 {
		return fmt.Errorf("splunk poll interval must be positive, got %d", c.Splunk.PollIntervalSec)
	}
	if c.Ask.SummaryMaxResults <= 0 {
		return fmt.Errorf("summary max results must be positive, got %d", c.Ask.SummaryMaxResults)
	}
	if c.Ask.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Ask.RetryAttempts)
	}
	return nil
}

// Timeout returns the Splunk request timeout as a duration.
func (c SplunkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// PollInterval returns the Splunk poll interval as a duration.
func (c SplunkConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}
