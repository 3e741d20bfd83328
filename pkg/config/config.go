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

// Run store backends.
const (
	RunStoreMemory = "memory"
	RunStoreRedis  = "redis"
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

	// ConnMaxLifetime recycles pooled connections; zero keeps them.
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the genetic timetable search and run retention.
type SchedulerConfig struct {
	Enabled        bool
	PopulationSize int
	Generations    int
	MutationRate   float64
	EliteSize      int
	Workers        int
	Seed           int64
	ExternalScope  string
	RunTTL         time.Duration
	RunStore       string
	QueueWorkers   int
	QueueBuffer    int
	QueueRetries   int
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
		// an explicit config file path surfaces a missing .env as fs.ErrNotExist
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

		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:    v.GetString("JWT_SECRET"),
		Issuer:    v.GetString("JWT_ISSUER"),
		AccessTTL: parseDuration(v.GetString("JWT_ACCESS_TTL"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:        v.GetBool("ENABLE_SCHEDULER"),
		PopulationSize: v.GetInt("SCHEDULER_POPULATION_SIZE"),
		Generations:    v.GetInt("SCHEDULER_GENERATIONS"),
		MutationRate:   v.GetFloat64("SCHEDULER_MUTATION_RATE"),
		EliteSize:      v.GetInt("SCHEDULER_ELITE_SIZE"),
		Workers:        v.GetInt("SCHEDULER_WORKERS"),
		Seed:           v.GetInt64("SCHEDULER_SEED"),
		ExternalScope:  strings.ToLower(strings.TrimSpace(v.GetString("SCHEDULER_EXTERNAL_SCOPE"))),
		RunTTL:         parseDuration(v.GetString("SCHEDULER_RUN_TTL"), 30*time.Minute),
		RunStore:       strings.ToLower(strings.TrimSpace(v.GetString("SCHEDULER_RUN_STORE"))),
		QueueWorkers:   v.GetInt("SCHEDULER_QUEUE_WORKERS"),
		QueueBuffer:    v.GetInt("SCHEDULER_QUEUE_BUFFER"),
		QueueRetries:   v.GetInt("SCHEDULER_QUEUE_RETRIES"),
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
	v.SetDefault("DB_NAME", "university_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "timetable-api")
	v.SetDefault("JWT_ACCESS_TTL", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_POPULATION_SIZE", 50)
	v.SetDefault("SCHEDULER_GENERATIONS", 100)
	v.SetDefault("SCHEDULER_MUTATION_RATE", 0.3)
	v.SetDefault("SCHEDULER_ELITE_SIZE", 2)
	v.SetDefault("SCHEDULER_WORKERS", 1)
	v.SetDefault("SCHEDULER_SEED", 0)
	v.SetDefault("SCHEDULER_EXTERNAL_SCOPE", "all")
	v.SetDefault("SCHEDULER_RUN_TTL", "30m")
	v.SetDefault("SCHEDULER_RUN_STORE", RunStoreMemory)
	v.SetDefault("SCHEDULER_QUEUE_WORKERS", 1)
	v.SetDefault("SCHEDULER_QUEUE_BUFFER", 16)
	v.SetDefault("SCHEDULER_QUEUE_RETRIES", 0)
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
