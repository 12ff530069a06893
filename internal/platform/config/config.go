package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every external dependency setting the platform needs.
// It is built once in main and passed into constructors; no package-level
// settings object exists anywhere in the codebase.
type Config struct {
	Addr string

	// Postgres connection string. Empty means in-memory stores (dev/tests).
	DatabaseURL string

	// Redis connection URL for the ledger lookup cache. Empty disables caching.
	RedisURL string

	// Kafka brokers for the audit event stream. Empty disables publishing.
	KafkaBrokers []string
	AuditTopic   string

	// AuditBuffer sizes the in-process audit queue. Zero publishes
	// synchronously on the request path.
	AuditBuffer int

	Ledger LedgerConfig

	// BaseVerificationURL is the public prefix for credential verification
	// links, e.g. https://verify.example.com.
	BaseVerificationURL string

	JWTSigningKey string
	JWTIssuer     string
	JWTExpiry     time.Duration

	// NotifyEndpoint receives issuance notifications. Empty means
	// notifications are logged only.
	NotifyEndpoint string

	// RendererEndpoint receives artifact render jobs; CallbackSecret
	// authenticates the renderer's callback. Empty disables rendering.
	RendererEndpoint string
	CallbackSecret   string

	// PublicBaseURL is the API's own externally visible root, used for
	// issuer profile links and renderer callbacks.
	PublicBaseURL string
}

// LedgerConfig points at the external hash-anchoring service.
type LedgerConfig struct {
	// Endpoint of the anchoring gateway. Empty means anchoring is disabled
	// and credentials are issued without an anchor.
	Endpoint        string
	ContractAddress string
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:                envOr("DCP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DCP_DATABASE_URL"),
		RedisURL:            os.Getenv("DCP_REDIS_URL"),
		AuditTopic:          envOr("DCP_AUDIT_TOPIC", "dcp.audit.events"),
		AuditBuffer:         envIntOr("DCP_AUDIT_BUFFER", 0),
		BaseVerificationURL: envOr("DCP_VERIFY_BASE_URL", "https://verify.digitalcredentials.example"),
		JWTSigningKey:       envOr("DCP_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:           envOr("DCP_JWT_ISSUER", "dcp"),
		JWTExpiry:           envDurationOr("DCP_JWT_EXPIRY", 24*time.Hour),
		NotifyEndpoint:      os.Getenv("DCP_NOTIFY_ENDPOINT"),
		RendererEndpoint:    os.Getenv("DCP_RENDERER_ENDPOINT"),
		CallbackSecret:      os.Getenv("DCP_CALLBACK_SECRET"),
		PublicBaseURL:       envOr("DCP_PUBLIC_BASE_URL", "http://localhost:8080"),
		Ledger: LedgerConfig{
			Endpoint:        os.Getenv("DCP_LEDGER_ENDPOINT"),
			ContractAddress: os.Getenv("DCP_LEDGER_CONTRACT"),
			RequestTimeout:  envDurationOr("DCP_LEDGER_TIMEOUT", 10*time.Second),
			CacheTTL:        envDurationOr("DCP_LEDGER_CACHE_TTL", 5*time.Minute),
		},
	}
	if brokers := os.Getenv("DCP_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
