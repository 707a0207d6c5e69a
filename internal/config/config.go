package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Policy     PolicyConfig
	Cohort     CohortConfig
	Queue      QueueConfig
	Assignment AssignmentConfig
	Events     EventsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the relational backend.
type StoreConfig struct {
	Backend string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PolicyConfig carries the raw policy overrides. Parsing and validation
// happen in the policy package.
type PolicyConfig struct {
	MaxOpenSquads  int
	MinFillPercent int
	Roster         string
	File           string
	// GroupOverrides holds POLICY_<GROUP>_* variables keyed by upper-case
	// age group code.
	GroupOverrides map[string]GroupOverride
}

// GroupOverride is a per-age-group override read from the environment.
type GroupOverride struct {
	MaxOpenSquads  *int
	MinFillPercent *int
	Roster         string
}

// CohortConfig parameterizes the birth-year bucketing rule.
type CohortConfig struct {
	SeasonYear  int
	BucketYears int
}

// QueueConfig tunes the assignment job queue.
type QueueConfig struct {
	Backend        string
	Workers        int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	PollInterval   time.Duration
	Retention      time.Duration
	PruneInterval  time.Duration
	Lease          time.Duration
	RedisPrefix    string
}

// AssignmentConfig bounds the in-transaction conflict retry.
type AssignmentConfig struct {
	MaxTxAttempts int
}

// EventsConfig controls domain event fan-out.
type EventsConfig struct {
	RedisChannel string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	dsn := os.Getenv("POSTGRES_DSN")
	backend := getEnv("STORE_BACKEND", "")
	if backend == "" {
		backend = "memory"
		if dsn != "" {
			backend = "postgres"
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "squad-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(backend),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  os.Getenv("POSTGRES_MIGRATIONS_DIR"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Policy: PolicyConfig{
			MaxOpenSquads:  getEnvAsInt("POLICY_MAX_OPEN_SQUADS", 2),
			MinFillPercent: getEnvAsInt("POLICY_MIN_FILL_PERCENT", 80),
			Roster:         getEnv("POLICY_ROSTER", "GK:1,DEF:3,MID:2,FWD:2"),
			File:           os.Getenv("POLICY_FILE"),
			GroupOverrides: groupOverridesFromEnv(os.Environ()),
		},
		Cohort: CohortConfig{
			SeasonYear:  getEnvAsInt("COHORT_SEASON_YEAR", time.Now().Year()),
			BucketYears: getEnvAsInt("COHORT_BUCKET_YEARS", 1),
		},
		Queue: QueueConfig{
			Backend:        strings.ToLower(getEnv("QUEUE_BACKEND", "memory")),
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			MaxAttempts:    getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffInitial: getEnvAsDuration("QUEUE_BACKOFF_INITIAL", 200*time.Millisecond),
			BackoffMax:     getEnvAsDuration("QUEUE_BACKOFF_MAX", 5*time.Second),
			PollInterval:   getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
			Retention:      getEnvAsDuration("QUEUE_RETENTION", time.Hour),
			PruneInterval:  getEnvAsDuration("QUEUE_PRUNE_INTERVAL", time.Minute),
			Lease:          getEnvAsDuration("QUEUE_LEASE", time.Minute),
			RedisPrefix:    getEnv("QUEUE_REDIS_PREFIX", "squad:jobs"),
		},
		Assignment: AssignmentConfig{
			MaxTxAttempts: getEnvAsInt("ASSIGN_MAX_TX_ATTEMPTS", 3),
		},
		Events: EventsConfig{
			RedisChannel: os.Getenv("EVENTS_REDIS_CHANNEL"),
		},
	}

	switch cfg.Store.Backend {
	case "memory", "postgres":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("STORE_BACKEND=postgres requires POSTGRES_DSN")
	}
	switch cfg.Queue.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("invalid QUEUE_BACKEND %q", cfg.Queue.Backend)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of minted bearer tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

const groupPrefix = "POLICY_"

var groupSuffixes = []string{"_MAX_OPEN_SQUADS", "_MIN_FILL_PERCENT", "_ROSTER"}

// groupOverridesFromEnv collects POLICY_<GROUP>_{MAX_OPEN_SQUADS,MIN_FILL_PERCENT,ROSTER}.
// The global POLICY_MAX_OPEN_SQUADS style keys have an empty group and are skipped.
func groupOverridesFromEnv(environ []string) map[string]GroupOverride {
	out := map[string]GroupOverride{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, groupPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, groupPrefix)
		for _, suffix := range groupSuffixes {
			if !strings.HasSuffix(rest, suffix) {
				continue
			}
			group := strings.TrimSuffix(rest, suffix)
			if group == "" {
				break
			}
			override := out[group]
			switch suffix {
			case "_MAX_OPEN_SQUADS":
				if n, err := strconv.Atoi(value); err == nil {
					override.MaxOpenSquads = &n
				}
			case "_MIN_FILL_PERCENT":
				if n, err := strconv.Atoi(value); err == nil {
					override.MinFillPercent = &n
				}
			case "_ROSTER":
				override.Roster = value
			}
			out[group] = override
			break
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
