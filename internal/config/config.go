// Package config loads the journal service configuration from environment
// variables, an optional .env file and an optional YAML vocabulary file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingDocstoreURI is returned when DOCSTORE_URI is not set. The service
// refuses to start without a document store.
var ErrMissingDocstoreURI = errors.New("DOCSTORE_URI is required")

// ErrMissingJWTSecret is returned in production when JWT_SECRET is not set.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required in production")

// devJWTSecret signs tokens outside production when JWT_SECRET is unset.
const devJWTSecret = "journal-secret-key"

// Default tag vocabularies, used when neither a vocabulary file nor the
// STRATEGY_TAGS / SENTIMENT_TAGS variables are set.
var (
	DefaultStrategyTags = []string{
		"breakout", "pullback", "momentum", "mean-reversion", "earnings",
		"covered-call", "cash-secured-put", "vertical-spread", "iron-condor", "scalp",
	}
	DefaultSentimentTags = []string{
		"bullish", "bearish", "neutral", "high-volatility", "low-volatility", "risk-off",
	}
)

// AppConfig holds all application configuration.
type AppConfig struct {
	// Env is "production" or anything else for development.
	Env   string
	Debug bool
	Port  string

	// DatabasePath is the SQLite file holding identities and sessions.
	DatabasePath string

	Docstore DocstoreConfig
	Auth     AuthConfig

	Vocabulary Vocabulary
}

// DocstoreConfig holds document store connection settings.
type DocstoreConfig struct {
	URI      string
	Database string
	// ConnectRetries bounds the attempts made while opening the connection.
	ConnectRetries int
}

// AuthConfig holds identity and session settings.
type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	SessionTTL        time.Duration
	SessionSweep      time.Duration
	PasswordMinLength int
	SecureCookies     bool
}

// Vocabulary is the controlled list of tags a trade may carry.
type Vocabulary struct {
	Strategy  []string `yaml:"strategy" json:"strategy"`
	Sentiment []string `yaml:"sentiment" json:"sentiment"`
}

// IsProduction reports whether the service runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*AppConfig, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &AppConfig{
		Env:          getEnv("ENV", "development"),
		Debug:        getEnv("DEBUG", "") == "true",
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "journal.db"),
		Docstore: DocstoreConfig{
			URI:            getEnv("DOCSTORE_URI", ""),
			Database:       getEnv("DOCSTORE_DATABASE", "tradingApp"),
			ConnectRetries: getEnvInt("DOCSTORE_CONNECT_RETRIES", 3),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
			SessionTTL:        getEnvDuration("SESSION_TTL", 14*24*time.Hour),
			SessionSweep:      getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			PasswordMinLength: getEnvInt("PASSWORD_MIN_LENGTH", 8),
		},
	}
	cfg.Auth.SecureCookies = cfg.IsProduction()

	if cfg.Docstore.URI == "" {
		return nil, ErrMissingDocstoreURI
	}
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingJWTSecret
		}
		cfg.Auth.JWTSecret = devJWTSecret
	}

	vocab, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	cfg.Vocabulary = vocab

	return cfg, nil
}

// loadVocabulary resolves tag vocabularies: the YAML file wins, then the
// comma separated variables, then the defaults.
func loadVocabulary() (Vocabulary, error) {
	if path := getEnv("TAG_VOCABULARY_FILE", ""); path != "" {
		return LoadVocabularyFile(path)
	}

	return Vocabulary{
		Strategy:  getEnvList("STRATEGY_TAGS", DefaultStrategyTags),
		Sentiment: getEnvList("SENTIMENT_TAGS", DefaultSentimentTags),
	}, nil
}

// LoadVocabularyFile reads a YAML document of the form
//
//	strategy: [breakout, pullback]
//	sentiment: [bullish, bearish]
func LoadVocabularyFile(path string) (Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary file: %w", err)
	}

	var vocab Vocabulary
	if err := yaml.Unmarshal(raw, &vocab); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary file: %w", err)
	}
	if len(vocab.Strategy) == 0 {
		vocab.Strategy = DefaultStrategyTags
	}
	if len(vocab.Sentiment) == 0 {
		vocab.Sentiment = DefaultSentimentTags
	}
	return vocab, nil
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
