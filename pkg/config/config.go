package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the read-through cache for persisted schedules.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// SoftWeightsConfig holds the default soft-constraint weights, overridable per rule set.
type SoftWeightsConfig struct {
	LoadImbalance int
	SessionGap    int
	CrossLevel    int
	ElectiveClash int
}

// SchedulerConfig tunes the search engine and the generation orchestrator.
type SchedulerConfig struct {
	BacktrackBudget  int
	CheckInterval    int
	CandidateLimit   int
	InfeasiblePolicy string
	MaxRunDuration   time.Duration
	PersistRetries   int
	PersistDelay     time.Duration
	Workers          int
	QueueSize        int
	RunTTL           time.Duration
	SoftWeights      SoftWeightsConfig
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command-line flags bound on top of the environment. Flag names
// use the env key spelling in lower case with dashes, e.g. --scheduler-backtrack-budget.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_SCHEDULE_CACHE"),
		TTL:     parseDuration(v.GetString("SCHEDULE_CACHE_TTL"), time.Hour),
		Prefix:  v.GetString("SCHEDULE_CACHE_PREFIX"),
	}

	cfg.Scheduler = SchedulerConfig{
		BacktrackBudget:  v.GetInt("SCHEDULER_BACKTRACK_BUDGET"),
		CheckInterval:    v.GetInt("SCHEDULER_CHECK_INTERVAL"),
		CandidateLimit:   v.GetInt("SCHEDULER_CANDIDATE_LIMIT"),
		InfeasiblePolicy: strings.ToLower(v.GetString("SCHEDULER_INFEASIBLE_POLICY")),
		MaxRunDuration:   parseDuration(v.GetString("SCHEDULER_MAX_RUN_DURATION"), 0),
		PersistRetries:   v.GetInt("SCHEDULER_PERSIST_RETRIES"),
		PersistDelay:     parseDuration(v.GetString("SCHEDULER_PERSIST_DELAY"), 100*time.Millisecond),
		Workers:          v.GetInt("SCHEDULER_WORKERS"),
		QueueSize:        v.GetInt("SCHEDULER_QUEUE_SIZE"),
		RunTTL:           parseDuration(v.GetString("SCHEDULER_RUN_TTL"), 30*time.Minute),
		SoftWeights: SoftWeightsConfig{
			LoadImbalance: v.GetInt("SCHEDULER_WEIGHT_LOAD_IMBALANCE"),
			SessionGap:    v.GetInt("SCHEDULER_WEIGHT_SESSION_GAP"),
			CrossLevel:    v.GetInt("SCHEDULER_WEIGHT_CROSS_LEVEL"),
			ElectiveClash: v.GetInt("SCHEDULER_WEIGHT_ELECTIVE_CLASH"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULE_CACHE", true)
	v.SetDefault("SCHEDULE_CACHE_TTL", "1h")
	v.SetDefault("SCHEDULE_CACHE_PREFIX", "schedules")

	v.SetDefault("SCHEDULER_BACKTRACK_BUDGET", 10000)
	v.SetDefault("SCHEDULER_CHECK_INTERVAL", 64)
	v.SetDefault("SCHEDULER_CANDIDATE_LIMIT", 256)
	v.SetDefault("SCHEDULER_INFEASIBLE_POLICY", "continue")
	v.SetDefault("SCHEDULER_MAX_RUN_DURATION", "")
	v.SetDefault("SCHEDULER_PERSIST_RETRIES", 3)
	v.SetDefault("SCHEDULER_PERSIST_DELAY", "100ms")
	v.SetDefault("SCHEDULER_WORKERS", 2)
	v.SetDefault("SCHEDULER_QUEUE_SIZE", 32)
	v.SetDefault("SCHEDULER_RUN_TTL", "30m")
	v.SetDefault("SCHEDULER_WEIGHT_LOAD_IMBALANCE", 1)
	v.SetDefault("SCHEDULER_WEIGHT_SESSION_GAP", 1)
	v.SetDefault("SCHEDULER_WEIGHT_CROSS_LEVEL", 2)
	v.SetDefault("SCHEDULER_WEIGHT_ELECTIVE_CLASH", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
