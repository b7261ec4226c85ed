// Package config reads process settings from the environment. A .env file in the working
// directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	PostgresUser     string `env:"POSTGRES_USER,default=postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PGHost           string `env:"PG_HOST,default=localhost"`
	PGPort           string `env:"PG_PORT,default=5432"`
	PGDatabase       string `env:"PG_DATABASE,default=parlor"`

	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB   int    `env:"REDIS_DB,default=0"`

	JournalEnabled            bool   `env:"JOURNAL_ENABLED,default=true"`
	HistorianQueueName        string `env:"HISTORIAN_QUEUE_NAME,default=parlor_actions"`
	HistorianBatchSize        int    `env:"HISTORIAN_BATCH_SIZE,default=20"`
	HistorianFlushMs          int    `env:"HISTORIAN_FLUSH_MS,default=500"`
	MatchInactivityTimeoutSec int    `env:"MATCH_INACTIVITY_TIMEOUT_SEC,default=600"`

	// TokenExpireTime is a duration such as "72h"; empty means tokens never expire.
	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME"`

	// PEM key pair for signing tokens; both or neither. Unset generates a pair per process.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	Argon2MemoryKiB  int `env:"ARGON2_MEMORY_KIB,default=65536"`
	Argon2Iterations int `env:"ARGON2_ITERATIONS,default=5"`

	AlertGranularitySec int `env:"ALERT_GRANULARITY_SEC,default=10"`
	MaxMultiplier       int `env:"MAX_MULTIPLIER,default=3"`
}

// Load decodes the environment. Defaults apply to anything unset.
func Load() (*Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if c.HistorianBatchSize < 1 {
		return nil, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", c.HistorianBatchSize)
	}
	if c.AlertGranularitySec < 1 {
		return nil, fmt.Errorf("ALERT_GRANULARITY_SEC must be positive, got %d", c.AlertGranularitySec)
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return nil, errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together")
	}
	if c.Argon2MemoryKiB < 8 || c.Argon2Iterations < 1 {
		return nil, fmt.Errorf("argon2 cost too low: memory %d KiB, %d iterations", c.Argon2MemoryKiB, c.Argon2Iterations)
	}
	if _, err := c.TokenExpiry(); err != nil {
		return nil, err
	}
	return &c, nil
}

// PostgresURL is the pgx connection string.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

func (c *Config) HistorianFlushDelay() time.Duration {
	return time.Duration(c.HistorianFlushMs) * time.Millisecond
}

func (c *Config) MatchInactivityTimeout() time.Duration {
	return time.Duration(c.MatchInactivityTimeoutSec) * time.Second
}

// TokenExpiry parses TokenExpireTime; 0 means no expiry.
func (c *Config) TokenExpiry() (time.Duration, error) {
	if c.TokenExpireTime == "" || c.TokenExpireTime == "never" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TokenExpireTime)
	if err != nil {
		return 0, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err)
	}
	return d, nil
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Warnf("Unknown LOG_LEVEL %q, using info", c.LogLevel)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
