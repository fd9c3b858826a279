package bootstrap

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY is required")

type Config struct {
	ServerAddr string
	LogLevel   string

	DeepgramAPIKey         string
	DeepgramStreamURL      string
	DeepgramAPIURL         string
	DeepgramModel          string
	DeepgramLanguage       string
	DeepgramEncoding       string
	DeepgramSampleRate     int
	DeepgramInterimResults bool
	DeepgramSpeakModel     string

	StreamConnectTimeout  time.Duration
	StreamFinalizeTimeout time.Duration
	SourceFetchTimeout    time.Duration
	SourceChunkSize       int
	RequestTimeout        time.Duration

	StartsPerSecond float64
	StartBurst      int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int

	StaticDir string
	IndexHTML string
}

// LoadConfig reads the environment, preferring an optional .env file in the
// working directory for anything not already set.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DeepgramAPIKey:         getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramStreamURL:      getEnv("DEEPGRAM_STREAM_URL", "wss://api.deepgram.com/v1/listen"),
		DeepgramAPIURL:         getEnv("DEEPGRAM_API_URL", "https://api.deepgram.com"),
		DeepgramModel:          getEnv("DEEPGRAM_MODEL", "nova-3"),
		DeepgramLanguage:       getEnv("DEEPGRAM_LANGUAGE", "es"),
		DeepgramEncoding:       getEnv("DEEPGRAM_ENCODING", ""),
		DeepgramSampleRate:     getEnvInt("DEEPGRAM_SAMPLE_RATE", 0),
		DeepgramInterimResults: getEnvBool("DEEPGRAM_INTERIM_RESULTS", true),
		DeepgramSpeakModel:     getEnv("DEEPGRAM_SPEAK_MODEL", ""),

		StreamConnectTimeout:  getEnvDuration("STREAM_CONNECT_TIMEOUT", 30*time.Second),
		StreamFinalizeTimeout: getEnvDuration("STREAM_FINALIZE_TIMEOUT", 10*time.Second),
		SourceFetchTimeout:    getEnvDuration("SOURCE_FETCH_TIMEOUT", 60*time.Second),
		SourceChunkSize:       getEnvInt("SOURCE_CHUNK_SIZE", 4096),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		StartsPerSecond: getEnvFloat("STREAM_STARTS_PER_SECOND", 1),
		StartBurst:      getEnvInt("STREAM_START_BURST", 5),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		StaticDir: getEnv("STATIC_DIR", "./static"),
		IndexHTML: getEnv("INDEX_HTML", "./static/index.html"),
	}
}

func (c *Config) Validate() error {
	if c.DeepgramAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func ProvideConfig() (*Config, error) {
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
