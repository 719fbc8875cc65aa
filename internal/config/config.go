package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Site
	SiteName       string
	SiteURL        string
	CalendarURL    string
	AllowedOrigins []string

	// Storage backend: "supabase" or "sql"
	StoreBackend string
	SQLDriver    string // sqlite3 or libsql
	SQLDSN       string

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string

	// Browser storage scope: Redis when REDIS_ADDR is set, memory otherwise
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ScopeTTL      time.Duration

	// Reply generation: "agent" (HTTP) or "openai"
	ReplyProvider string
	AgentURL      string
	OpenAIKey     string
	OpenAIModel   string
	SystemPrompt  string

	// Email
	ResendAPIKey   string
	EmailFrom      string
	EmailFromName  string
	SalesInbox     string
	DigestSchedule string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Conversation cache / rate limiting
	ConversationTTL time.Duration
	MessagesPerMin  int
	MessageBurst    int

	// Trigger rules override file (YAML)
	TriggerRulesFile string

	// Observability
	OTLPEndpoint string

	// Admin
	AdminPasswordHash string
	JWTSecret         string
	JWTAccessTTL      time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SiteName:       getEnv("SITE_NAME", "Northwind Studio"),
		SiteURL:        getEnv("SITE_URL", "http://localhost:3000"),
		CalendarURL:    getEnv("CALENDAR_URL", "https://cal.com/northwind/intro"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		StoreBackend: getEnv("STORE_BACKEND", "sql"),
		SQLDriver:    getEnv("SQL_DRIVER", "sqlite3"),
		SQLDSN:       getEnv("SQL_DSN", "file:leadchat.db?_journal_mode=WAL&_busy_timeout=5000"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ScopeTTL:      getEnvDuration("SCOPE_TTL", 180*24*time.Hour),

		ReplyProvider: getEnv("REPLY_PROVIDER", "agent"),
		AgentURL:      getEnv("AGENT_URL", "http://localhost:8090"),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		SystemPrompt:  getEnv("SYSTEM_PROMPT", defaultSystemPrompt),

		ResendAPIKey:   getEnv("RESEND_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "hello@northwind.studio"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Northwind Studio"),
		SalesInbox:     getEnv("SALES_INBOX", "sales@northwind.studio"),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 8 * * *"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 20*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 200*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 20),

		ConversationTTL: getEnvDuration("CONVERSATION_TTL", 30*time.Minute),
		MessagesPerMin:  getEnvInt("MESSAGES_PER_MIN", 12),
		MessageBurst:    getEnvInt("MESSAGE_BURST", 4),

		TriggerRulesFile: getEnv("TRIGGER_RULES_FILE", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", "leadchat-default-dev-secret-change-me"),
		JWTAccessTTL:      getEnvDuration("JWT_ACCESS_TTL", 8*time.Hour),
	}
}

const defaultSystemPrompt = "You are the sales assistant of a software studio. " +
	"Answer questions about services and pricing briefly and warmly. " +
	"When the visitor shows interest, ask for their name, email, company, " +
	"project type, budget range and timeline, one question at a time."

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
