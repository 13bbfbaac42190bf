package internal

import (
	"fmt"
	"strings"
	"time"
)

// Config is the relay configuration, read from the environment.
type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8080"`
	HealthPort        int           `env:"HEALTH_PORT,default=8081"`
	DebugPort         int           `env:"DEBUG_PORT,default=8082"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=1h"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=256"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE,default=8192"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=5s"`
	PersistTimeout    time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL,default=30s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`
	// One word per line; moderation is off when empty.
	CensoredWordsFile string `env:"CENSORED_WORDS_FILE"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Validate rejects values the relay cannot run with.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if c.SessionBufferSize <= 0 {
		return fmt.Errorf("SESSION_BUFFER_SIZE must be positive, got %d", c.SessionBufferSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) HealthAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HealthPort)
}

// CharacterRune validates that str holds exactly one character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
