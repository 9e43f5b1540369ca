// Package config loads engine configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full engine configuration. All values come from
// PROOFPALS_-prefixed environment variables.
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	// DatabaseURL switches persistence to Postgres; empty keeps the
	// in-memory stores. RedisURL does the same for the key image ledger.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// KafkaSeeds enables mirroring audit events to a Kafka topic.
	KafkaSeeds []string `envconfig:"KAFKA_SEEDS"`
	KafkaTopic string   `envconfig:"KAFKA_TOPIC" default:"proofpals.audit"`

	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" required:"true"`
	AdminToken    string `envconfig:"ADMIN_TOKEN"`

	// IdentityPepper salts reviewer identity hashes in credential and
	// audit storage.
	IdentityPepper string `envconfig:"IDENTITY_PEPPER" required:"true"`

	VoteQuorum    int  `envconfig:"VOTE_QUORUM" default:"3"`
	VoteMargin    int  `envconfig:"VOTE_MARGIN" default:"1"`
	FlagEscalates bool `envconfig:"FLAG_ESCALATES" default:"true"`

	CredentialTTL time.Duration `envconfig:"CREDENTIAL_TTL" default:"24h"`

	AuditAsyncBuffer int `envconfig:"AUDIT_ASYNC_BUFFER" default:"0"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("proofpals", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
