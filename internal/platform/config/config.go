// Package config builds runtime configuration from environment variables so
// main stays lean. Amount-valued settings are decimal strings; malformed
// values fall back to the documented defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"aurum/pkg/domain"
)

// Config is the full runtime configuration for the ledger service.
type Config struct {
	Addr string

	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Account    AccountConfig
	Compliance ComplianceConfig
	Minting    LimitsConfig
	Burning    LimitsConfig
	Withdrawal WithdrawalConfig
	Audit      AuditConfig
}

// PostgresConfig carries the connection string for the ledger database.
// Empty DSN means in-memory stores (dev, tests).
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the compliance check cache.
// Empty URL disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CheckTTL     time.Duration
}

// KafkaConfig configures the event publisher. Empty Brokers means events stay
// on the in-process publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AccountConfig configures the external account/balance service.
// Empty BaseURL falls back to the trusting stand-in verifier.
type AccountConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ComplianceConfig configures the external policy-check gate.
type ComplianceConfig struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	BreakerCooldown  time.Duration
}

// LimitsConfig bounds per-request mint/burn amounts.
type LimitsConfig struct {
	MinAmount domain.Amount
	MaxAmount domain.Amount
}

// WithdrawalConfig carries fee parameters and the delivery estimate window.
type WithdrawalConfig struct {
	ProcessingFee    domain.Amount
	ShippingPerUnit  domain.Amount
	InsuranceRate    domain.Amount
	DeliveryEstimate time.Duration
}

// AuditConfig tunes the reconciliation engine without changing its semantics.
type AuditConfig struct {
	// Tolerance is the absolute reserve-coverage divergence accepted before a
	// discrepancy becomes a finding.
	Tolerance domain.Amount
	// GraceWindow is how long a divergence must persist before it is treated
	// as genuine rather than a transient race with in-flight requests.
	GraceWindow time.Duration
	// StuckAfter is how long a request may stay PROCESSING before the audit
	// engine surfaces it as stuck.
	StuckAfter time.Duration
	// Interval is the reconciliation loop period.
	Interval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr: getString("AURUM_ADDR", ":8080"),
		Postgres: PostgresConfig{
			DSN: os.Getenv("AURUM_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("AURUM_REDIS_URL"),
			PoolSize:     getInt("AURUM_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("AURUM_REDIS_MIN_IDLE", 2),
			DialTimeout:  getDuration("AURUM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("AURUM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("AURUM_REDIS_WRITE_TIMEOUT", 3*time.Second),
			CheckTTL:     getDuration("AURUM_COMPLIANCE_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getList("AURUM_KAFKA_BROKERS"),
			Topic:   getString("AURUM_KAFKA_TOPIC", "aurum.ledger.events"),
		},
		Account: AccountConfig{
			BaseURL: os.Getenv("AURUM_ACCOUNT_URL"),
			Timeout: getDuration("AURUM_ACCOUNT_TIMEOUT", 3*time.Second),
		},
		Compliance: ComplianceConfig{
			BaseURL:          os.Getenv("AURUM_COMPLIANCE_URL"),
			Timeout:          getDuration("AURUM_COMPLIANCE_TIMEOUT", 3*time.Second),
			FailureThreshold: getInt("AURUM_COMPLIANCE_BREAKER_FAILURES", 5),
			SuccessThreshold: getInt("AURUM_COMPLIANCE_BREAKER_SUCCESSES", 3),
			BreakerCooldown:  getDuration("AURUM_COMPLIANCE_BREAKER_COOLDOWN", 30*time.Second),
		},
		Minting: LimitsConfig{
			MinAmount: getAmount("AURUM_MINT_MIN", "0.000001"),
			MaxAmount: getAmount("AURUM_MINT_MAX", "1000000"),
		},
		Burning: LimitsConfig{
			MinAmount: getAmount("AURUM_BURN_MIN", "0.000001"),
			MaxAmount: getAmount("AURUM_BURN_MAX", "1000000"),
		},
		Withdrawal: WithdrawalConfig{
			ProcessingFee:    getAmount("AURUM_WITHDRAWAL_PROCESSING_FEE", "25"),
			ShippingPerUnit:  getAmount("AURUM_WITHDRAWAL_SHIPPING_PER_UNIT", "1.5"),
			InsuranceRate:    getAmount("AURUM_WITHDRAWAL_INSURANCE_RATE", "0.01"),
			DeliveryEstimate: getDuration("AURUM_WITHDRAWAL_DELIVERY_ESTIMATE", 7*24*time.Hour),
		},
		Audit: AuditConfig{
			Tolerance:   getAmount("AURUM_AUDIT_TOLERANCE", "0.0001"),
			GraceWindow: getDuration("AURUM_AUDIT_GRACE_WINDOW", 2*time.Second),
			StuckAfter:  getDuration("AURUM_AUDIT_STUCK_AFTER", 5*time.Minute),
			Interval:    getDuration("AURUM_AUDIT_INTERVAL", time.Minute),
		},
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getAmount(key, fallback string) domain.Amount {
	if v := os.Getenv(key); v != "" {
		if a, err := domain.ParseAmount(v); err == nil {
			return a
		}
	}
	return domain.MustAmount(fallback)
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
