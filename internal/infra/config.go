package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5432"`
	PGUser        string `env:"PGUSER" envDefault:"gridshare"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"gridshare"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"gridshare"`
	PGMaxConns    int32  `env:"PG_MAX_CONNS" envDefault:"10"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Event store backend: postgres or memory
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// Redis credential cache; empty keeps credentials in process memory
	RedisURL      string        `env:"REDIS_URL"`
	CredentialTTL time.Duration `env:"CREDENTIAL_TTL" envDefault:"720h"`

	// Server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Kafka
	KafkaBrokers      string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix  string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"gridshare.permission"`
	RelayPollInterval time.Duration `env:"RELAY_POLL_INTERVAL" envDefault:"500ms"`
	RelayBatchSize    int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`

	// Stale request sweep
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepStaleAfter time.Duration `env:"SWEEP_STALE_AFTER" envDefault:"168h"`
	// VALIDATED requests older than this are sent again; zero disables.
	SweepResendAfter time.Duration `env:"SWEEP_RESEND_AFTER" envDefault:"10m"`

	// How long a delivered ACCEPTED event is remembered to drop redeliveries.
	AcceptedDedupeTTL time.Duration `env:"ACCEPTED_DEDUPE_TTL" envDefault:"24h"`

	// Region collaborator
	RegionID       string        `env:"REGION_ID" envDefault:"at-eda"`
	RegionBaseURL  string        `env:"REGION_BASE_URL" envDefault:"http://localhost:9090"`
	RegionRPS      float64       `env:"REGION_RPS" envDefault:"5"`
	RegionBurst    int           `env:"REGION_BURST" envDefault:"5"`
	RegionTimeout  time.Duration `env:"REGION_TIMEOUT" envDefault:"10s"`
	BreakerFails   int           `env:"REGION_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout time.Duration `env:"REGION_BREAKER_RESET" envDefault:"1m"`
	FetchTimeout   time.Duration `env:"REGION_FETCH_TIMEOUT" envDefault:"2m"`
	RegionProfile  string        `env:"REGION_PROFILE_FILE" envDefault:"config/region.yaml"`

	// OAuth2 client of the permission administrator. Empty client id
	// sends unauthenticated requests.
	OAuthClientID     string `env:"REGION_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"REGION_OAUTH_CLIENT_SECRET"`
	OAuthTokenURL     string `env:"REGION_OAUTH_TOKEN_URL"`
	OAuthAuthURL      string `env:"REGION_OAUTH_AUTH_URL"`

	// Signed status callbacks
	CallbackSecret    string        `env:"REGION_CALLBACK_SECRET"`
	CallbackTolerance time.Duration `env:"REGION_CALLBACK_TOLERANCE" envDefault:"5m"`

	// Data needs catalog
	DataNeedsFile string `env:"DATA_NEEDS_FILE" envDefault:"config/data-needs.yaml"`
}

// LoadConfig reads an optional .env file and parses environment variables
// into a Config struct.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for configuration the engine cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	if c.RelayBatchSize <= 0 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be positive, got %d", c.RelayBatchSize)
	}
	if c.RelayPollInterval <= 0 {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be positive, got %s", c.RelayPollInterval)
	}
	if c.SweepStaleAfter <= 0 {
		return fmt.Errorf("SWEEP_STALE_AFTER must be positive, got %s", c.SweepStaleAfter)
	}
	if c.SweepResendAfter < 0 {
		return fmt.Errorf("SWEEP_RESEND_AFTER must not be negative, got %s", c.SweepResendAfter)
	}
	if c.AcceptedDedupeTTL <= 0 {
		return fmt.Errorf("ACCEPTED_DEDUPE_TTL must be positive, got %s", c.AcceptedDedupeTTL)
	}
	if c.RegionRPS <= 0 {
		return fmt.Errorf("REGION_RPS must be positive, got %g", c.RegionRPS)
	}
	if c.RegionID == "" {
		return fmt.Errorf("REGION_ID is required")
	}
	if c.OAuthClientID != "" && c.OAuthTokenURL == "" {
		return fmt.Errorf("REGION_OAUTH_TOKEN_URL is required when REGION_OAUTH_CLIENT_ID is set")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
