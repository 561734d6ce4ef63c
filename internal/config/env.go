package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// RemoteConfig selects and configures the converters used for MOBI and AZW3.
type RemoteConfig struct {
	Providers          []string // tried in order: "cloudconvert", "calibre", "backend"
	CloudConvertKey    string
	CloudConvertURL    string
	PollInterval       time.Duration
	BackendURL         string
	CalibreBinary      string
	CalibreTimeout     time.Duration
	RequestTimeout     time.Duration
	BreakerBaseBackoff time.Duration
	BreakerMaxBackoff  time.Duration
	MaxInflight        int
}

// RedisConfig defines Redis connectivity for batch status and breaker state.
type RedisConfig struct {
	URL       string
	Namespace string
	StatusTTL time.Duration
}

// S3Config describes the optional object-store collection.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	EncryptPassword string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	MaxUploadMB     int
	ShutdownTimeout time.Duration
}

// LLMConfig holds chat provider keys for the /api/llm proxy.
type LLMConfig struct {
	OpenAIKey    string
	GeminiKey    string
	DeepSeekKey  string
	DashScopeKey string
	AnthropicKey string
	Timeout      time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Remote  RemoteConfig
	Redis   RedisConfig
	S3      S3Config
	Server  ServerConfig
	LLM     LLMConfig
}

// FromEnv loads configuration from environment with sensible defaults.
// A .env file in the working directory is read first; variables already set in the process win.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/ebookconv.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_ebookconv",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Remote converters
	cfg.Remote = RemoteConfig{
		Providers:          parseList(getEnv("REMOTE_PROVIDERS", "cloudconvert,calibre")),
		CloudConvertKey:    getEnv("CLOUDCONVERT_API_KEY", ""),
		CloudConvertURL:    getEnv("CLOUDCONVERT_BASE_URL", "https://api.cloudconvert.com"),
		PollInterval:       parseDuration(getEnv("CLOUDCONVERT_POLL_INTERVAL", "2s"), 2*time.Second),
		BackendURL:         getEnv("CONVERT_BACKEND_URL", ""),
		CalibreBinary:      getEnv("EBOOK_CONVERT_BIN", "ebook-convert"),
		CalibreTimeout:     parseDuration(getEnv("EBOOK_CONVERT_TIMEOUT", "180s"), 180*time.Second),
		RequestTimeout:     parseDuration(getEnv("REMOTE_REQUEST_TIMEOUT", "5m"), 5*time.Minute),
		BreakerBaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		BreakerMaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
		MaxInflight:        parseInt(getEnv("REMOTE_MAX_INFLIGHT", "2"), 2),
	}

	cfg.Redis = RedisConfig{
		URL:       getEnv("REDIS_URL", ""),
		Namespace: getEnv("REDIS_NAMESPACE", "ebookconv"),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	cfg.S3 = S3Config{
		Bucket:          getEnv("S3_BUCKET", ""),
		Prefix:          getEnv("S3_PREFIX", ""),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		EncryptPassword: getEnv("STORAGE_ENCRYPT_PASSWORD", ""),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "3000"),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.LLM = LLMConfig{
		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		GeminiKey:    getEnv("GOOGLE_GEMINI_API_KEY", ""),
		DeepSeekKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DashScopeKey: getEnv("DASHSCOPE_API_KEY", ""),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
		Timeout:      parseDuration(getEnv("LLM_TIMEOUT", "60s"), 60*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// parseList splits a comma separated value, trimming and lowercasing entries and dropping empties.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
