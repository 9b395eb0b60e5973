package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server binary needs from the environment.
type Config struct {
	Addr          string
	DatabaseURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	JWTSigningKey string
	JWTTTL        time.Duration
	Attestation   AttestationConfig
}

// RedisConfig configures the optional unread-count cache. An empty URL
// disables it.
type RedisConfig struct {
	URL string
}

// AttestationConfig points at the external attestation service. An empty
// endpoint disables attestation (certificates are issued unattested).
type AttestationConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("CERTLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis:         RedisConfig{URL: os.Getenv("REDIS_URL")},
		KafkaBrokers:  brokers,
		JWTSigningKey: jwtSigningKey,
		JWTTTL:        durationEnv("JWT_TTL", 24*time.Hour),
		Attestation: AttestationConfig{
			Endpoint: os.Getenv("ATTESTATION_ENDPOINT"),
			Timeout:  durationEnv("ATTESTATION_TIMEOUT", 10*time.Second),
		},
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
