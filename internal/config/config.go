package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	ServiceName   string
	PublicBaseURL string
	LogLevel      string

	// Queue / workers
	UseMemoryQueue   bool
	QueueBackend     string // sqs, nats or memory
	WorkerCount      int
	CommerceQueueURL string
	JobsTable        string
	NATSURL          string
	NATSToken        string
	NATSSubject      string

	// Storage
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	TenantCacheTTL      time.Duration
	CatalogCacheTTL     time.Duration
	ConversationLockTTL time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ArchiveBucket       string

	// Text-completion backends
	LLMProvider         string // bedrock, gemini, anthropic, openai or none
	LLMFallbackProvider string
	LLMTimeout          time.Duration
	LLMMaxTokens        int
	HistoryLimit        int
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	AnthropicAPIKey     string
	AnthropicModelID    string
	OpenAIAPIKey        string
	OpenAIModelID       string

	// WhatsApp Cloud API
	WhatsAppBaseURL      string
	WhatsAppGraphVersion string
	WhatsAppAccessToken  string
	WhatsAppVerifyToken  string
	WhatsAppAppSecret    string

	// Paystack
	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string
	PaystackPayerDomain string

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	WebhookRateLimit   int
	WebhookRateWindow  time.Duration

	// Lifecycle
	AbandonAfter   time.Duration
	TenantSeedFile string

	// Merchant email
	EmailProvider         string // sendgrid, ses or empty for stub
	SendGridAPIKey        string
	EmailFromAddress      string
	EmailFromName         string
	MerchantFallbackEmail string

	// Tracing
	OTLPEndpoint string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		ServiceName:   getEnv("SERVICE_NAME", "whatsapp-commerce"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		QueueBackend:     strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", "sqs"))),
		WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),
		CommerceQueueURL: getEnv("COMMERCE_QUEUE_URL", ""),
		JobsTable:        getEnv("COMMERCE_JOBS_TABLE", ""),
		NATSURL:          getEnv("NATS_URL", ""),
		NATSToken:        getEnv("NATS_TOKEN", ""),
		NATSSubject:      getEnv("NATS_SUBJECT", "commerce.jobs"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		TenantCacheTTL:      getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),
		CatalogCacheTTL:     getEnvAsDuration("CATALOG_CACHE_TTL", time.Minute),
		ConversationLockTTL: getEnvAsDuration("CONVERSATION_LOCK_TTL", 45*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "anthropic"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 400),
		HistoryLimit:        getEnvAsInt("CONVERSATION_HISTORY_LIMIT", 10),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModelID:    getEnv("ANTHROPIC_MODEL_ID", "claude-3-5-sonnet-20241022"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModelID:       getEnv("OPENAI_MODEL_ID", "gpt-4o-mini"),

		WhatsAppBaseURL:      getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
		WhatsAppGraphVersion: getEnv("WHATSAPP_GRAPH_VERSION", "v18.0"),
		WhatsAppAccessToken:  getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppVerifyToken:  getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:    getEnv("WHATSAPP_APP_SECRET", ""),

		PaystackSecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackBaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackCallbackURL: getEnv("PAYSTACK_CALLBACK_URL", ""),
		PaystackPayerDomain: getEnv("PAYSTACK_PAYER_DOMAIN", "customers.whatsapp-commerce.ng"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   getEnvAsInt("WEBHOOK_RATE_LIMIT", 600),
		WebhookRateWindow:  getEnvAsDuration("WEBHOOK_RATE_WINDOW", time.Minute),

		AbandonAfter:   getEnvAsDuration("ABANDON_AFTER", 24*time.Hour),
		TenantSeedFile: getEnv("TENANT_SEED_FILE", ""),

		EmailProvider:         strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SendGridAPIKey:        getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "WhatsApp Orders"),
		MerchantFallbackEmail: getEnv("MERCHANT_FALLBACK_EMAIL", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
