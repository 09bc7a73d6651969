package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDocstoreURI(t *testing.T) {
	t.Setenv("DOCSTORE_URI", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingDocstoreURI)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOCSTORE_URI", "memory://")
	t.Setenv("ENV", "")
	t.Setenv("TAG_VOCABULARY_FILE", "")
	t.Setenv("STRATEGY_TAGS", "")
	t.Setenv("SENTIMENT_TAGS", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Docstore.URI)
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "tradingApp", cfg.Docstore.Database)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 8, cfg.Auth.PasswordMinLength)
	assert.False(t, cfg.Auth.SecureCookies)
	assert.Equal(t, DefaultStrategyTags, cfg.Vocabulary.Strategy)
	assert.Equal(t, DefaultSentimentTags, cfg.Vocabulary.Sentiment)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DOCSTORE_URI", "mongodb://localhost:27017")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("TAG_VOCABULARY_FILE", "")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("PASSWORD_MIN_LENGTH", "12")
	t.Setenv("STRATEGY_TAGS", "breakout, , scalp")
	t.Setenv("SENTIMENT_TAGS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Auth.SecureCookies)
	assert.Equal(t, "prod-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 12, cfg.Auth.PasswordMinLength)
	assert.Equal(t, []string{"breakout", "scalp"}, cfg.Vocabulary.Strategy)
	assert.Equal(t, DefaultSentimentTags, cfg.Vocabulary.Sentiment)
}

func TestLoad_ProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("DOCSTORE_URI", "mongodb://localhost:27017")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TAG_VOCABULARY_FILE", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoadVocabularyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: [wheel, strangle]\n"), 0o600))

	vocab, err := LoadVocabularyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"wheel", "strangle"}, vocab.Strategy)
	assert.Equal(t, DefaultSentimentTags, vocab.Sentiment)

	t.Setenv("DOCSTORE_URI", "memory://")
	t.Setenv("TAG_VOCABULARY_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"wheel", "strangle"}, cfg.Vocabulary.Strategy)

	_, err = LoadVocabularyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("JOURNAL_TEST_INT", "nope")
	t.Setenv("JOURNAL_TEST_DURATION", "-5s")

	assert.Equal(t, 3, getEnvInt("JOURNAL_TEST_INT", 3))
	assert.Equal(t, time.Minute, getEnvDuration("JOURNAL_TEST_DURATION", time.Minute))
	assert.Equal(t, "fallback", getEnv("JOURNAL_TEST_UNSET_KEY", "fallback"))
}
