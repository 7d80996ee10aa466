package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a value unset.
const (
	DefaultHTTPAddr       = ":8080"
	DefaultLogLevel       = "info"
	DefaultConnectTimeout = 15 * time.Second
	DefaultOpeningDelay   = time.Second
	DefaultLeftAgent      = "proper-paul"
	DefaultRightAgent     = "chic-charlotte"
	DefaultEnvironment    = "development"
)

// Config holds all application configuration
type Config struct {
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Sentry   SentryConfig
	Server   ServerConfig
	Log      LogConfig
	Debate   DebateConfig
}

// GeminiConfig holds the live agent backend configuration
type GeminiConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// KafkaConfig holds Kafka/Redpanda connection configuration
type KafkaConfig struct {
	SeedBrokers   []string
	Topics        []string
	ConsumerGroup string
	SASL          SASLConfig
	TLS           TLSConfig
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.SeedBrokers) > 0
}

// Topic returns the topic transcripts are published to.
func (k KafkaConfig) Topic() string {
	if len(k.Topics) == 0 {
		return "debates"
	}
	return k.Topics[0]
}

// SASLConfig holds SASL authentication configuration
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled bool
}

// DatabaseConfig holds the debate archive connection.
type DatabaseConfig struct {
	URL string
}

// SentryConfig holds error reporting configuration.
type SentryConfig struct {
	DSN         string
	Environment string
}

// ServerConfig holds the WebSocket server configuration.
type ServerConfig struct {
	Addr string
}

// LogConfig holds logging configuration. An empty Dir logs to stderr.
type LogConfig struct {
	Dir   string
	Level string
}

// DebateConfig holds turn-taking and presentation settings.
type DebateConfig struct {
	ConnectTimeout time.Duration
	OpeningDelay   time.Duration
	MaxTurns       int
	LeftAgent      string
	RightAgent     string
	RecordDir      string
}

// LoadConfig loads configuration from .env and the environment
func LoadConfig() (*Config, error) {
	return Load()
}

// Load reads the given env files (".env" when none are given) and then the
// environment. Missing files are ignored; variables already set in the
// environment win over file values.
func Load(files ...string) (*Config, error) {
	// Load .env file
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Parse TLS configuration
	tlsEnabled, err := boolEnv("TLS_ENABLED")
	if err != nil {
		return nil, err
	}

	// Parse debate configuration
	connectTimeout, err := durationEnv("CONNECT_TIMEOUT", DefaultConnectTimeout)
	if err != nil {
		return nil, err
	}
	openingDelay, err := durationEnv("OPENING_DELAY", DefaultOpeningDelay)
	if err != nil {
		return nil, err
	}
	maxTurns, err := intEnv("MAX_TURNS", 0)
	if err != nil {
		return nil, err
	}
	if maxTurns < 0 {
		return nil, fmt.Errorf("MAX_TURNS must not be negative, got %d", maxTurns)
	}

	// Create and return config
	return &Config{
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  os.Getenv("GEMINI_MODEL"),
		},
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  os.Getenv("OPENAI_MODEL"),
		},
		Kafka: KafkaConfig{
			SeedBrokers:   listEnv("SEED_BROKERS"),
			Topics:        listEnv("TOPICS"),
			ConsumerGroup: os.Getenv("CONSUMER_GROUP"),
			SASL: SASLConfig{
				Mechanism: os.Getenv("SASL_MECHANISM"),
				Username:  os.Getenv("SASL_USERNAME"),
				Password:  os.Getenv("SASL_PASSWORD"),
			},
			TLS: TLSConfig{
				Enabled: tlsEnabled,
			},
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Sentry: SentryConfig{
			DSN:         os.Getenv("SENTRY_DSN"),
			Environment: stringEnv("ENVIRONMENT", DefaultEnvironment),
		},
		Server: ServerConfig{
			Addr: stringEnv("HTTP_ADDR", DefaultHTTPAddr),
		},
		Log: LogConfig{
			Dir:   os.Getenv("LOG_DIR"),
			Level: stringEnv("LOG_LEVEL", DefaultLogLevel),
		},
		Debate: DebateConfig{
			ConnectTimeout: connectTimeout,
			OpeningDelay:   openingDelay,
			MaxTurns:       maxTurns,
			LeftAgent:      stringEnv("LEFT_AGENT", DefaultLeftAgent),
			RightAgent:     stringEnv("RIGHT_AGENT", DefaultRightAgent),
			RecordDir:      os.Getenv("RECORD_DIR"),
		},
	}, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// listEnv splits a comma separated variable, dropping empty entries.
func listEnv(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolEnv(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
