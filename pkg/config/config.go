package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Primary producer choices for the scheduler.
const (
	ProducerGreedy     = "greedy"
	ProducerSuggestion = "suggestion"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	Suggestion SuggestionConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig drives timetable generation: the weekly grid, producer selection,
// scope locking and the asynchronous job queue.
type SchedulerConfig struct {
	Days             []string
	Periods          []string
	PrimaryProducer  string
	PrimaryStrategy  string
	FallbackStrategy string
	LockTTL          time.Duration
	LockWait         time.Duration
	JobWorkers       int
	JobBuffer        int
	JobRetries       int
	JobTTL           time.Duration
	CacheTTL         time.Duration
}

// SuggestionConfig points at an OpenAI-compatible chat completion endpoint.
type SuggestionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Days:             splitAndTrim(v.GetString("SCHEDULER_DAYS")),
		Periods:          splitAndTrim(v.GetString("SCHEDULER_PERIODS")),
		PrimaryProducer:  strings.ToLower(v.GetString("SCHEDULER_PRIMARY_PRODUCER")),
		PrimaryStrategy:  strings.ToLower(v.GetString("SCHEDULER_PRIMARY_STRATEGY")),
		FallbackStrategy: strings.ToLower(v.GetString("SCHEDULER_FALLBACK_STRATEGY")),
		LockTTL:          parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 2*time.Minute),
		LockWait:         parseDuration(v.GetString("SCHEDULER_LOCK_WAIT"), 30*time.Second),
		JobWorkers:       v.GetInt("SCHEDULER_JOB_WORKERS"),
		JobBuffer:        v.GetInt("SCHEDULER_JOB_BUFFER"),
		JobRetries:       v.GetInt("SCHEDULER_JOB_RETRIES"),
		JobTTL:           parseDuration(v.GetString("SCHEDULER_JOB_TTL"), time.Hour),
		CacheTTL:         parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Suggestion = SuggestionConfig{
		BaseURL:     v.GetString("SUGGESTION_BASE_URL"),
		APIKey:      v.GetString("SUGGESTION_API_KEY"),
		Model:       v.GetString("SUGGESTION_MODEL"),
		Timeout:     parseDuration(v.GetString("SUGGESTION_TIMEOUT"), 60*time.Second),
		Temperature: v.GetFloat64("SUGGESTION_TEMPERATURE"),
		MaxTokens:   v.GetInt("SUGGESTION_MAX_TOKENS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_DAYS", "MONDAY,TUESDAY,WEDNESDAY,THURSDAY,FRIDAY")
	v.SetDefault("SCHEDULER_PERIODS", "09:00-10:00,10:00-11:00,11:00-12:00,12:00-13:00,14:00-15:00,15:00-16:00,16:00-17:00,17:00-18:00")
	v.SetDefault("SCHEDULER_PRIMARY_PRODUCER", ProducerGreedy)
	v.SetDefault("SCHEDULER_PRIMARY_STRATEGY", "enhanced")
	v.SetDefault("SCHEDULER_FALLBACK_STRATEGY", "base")
	v.SetDefault("SCHEDULER_LOCK_TTL", "2m")
	v.SetDefault("SCHEDULER_LOCK_WAIT", "30s")
	v.SetDefault("SCHEDULER_JOB_WORKERS", 2)
	v.SetDefault("SCHEDULER_JOB_BUFFER", 64)
	v.SetDefault("SCHEDULER_JOB_RETRIES", 1)
	v.SetDefault("SCHEDULER_JOB_TTL", "1h")
	v.SetDefault("TIMETABLE_CACHE_TTL", "10m")

	v.SetDefault("SUGGESTION_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("SUGGESTION_API_KEY", "")
	v.SetDefault("SUGGESTION_MODEL", "gpt-4o-mini")
	v.SetDefault("SUGGESTION_TIMEOUT", "60s")
	v.SetDefault("SUGGESTION_TEMPERATURE", 0.1)
	v.SetDefault("SUGGESTION_MAX_TOKENS", 4096)
}

// isMissingFile covers the path error viper returns when an explicit config file is absent.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
