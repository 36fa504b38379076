package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	Qdrant    QdrantConfig
	Blob      BlobConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Lifecycle LifecycleConfig
	Pipeline  PipelineConfig
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

// QdrantConfig points at the vector index holding document chunk embeddings.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// BlobConfig configures the object store holding raw document bytes.
type BlobConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LifecycleConfig tunes the document lifecycle orchestration.
type LifecycleConfig struct {
	BulkWorkers  int
	StoreTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
}

// PipelineConfig configures the hand-off to the external embedding pipeline.
type PipelineConfig struct {
	TaskQueueKey string
	CancelKeyTTL time.Duration
	Workers      int
	Retries      int
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
		if !errors.As(err, &notFound) {
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

	cfg.Qdrant = QdrantConfig{
		Host:       v.GetString("QDRANT_HOST"),
		Port:       v.GetInt("QDRANT_PORT"),
		Collection: v.GetString("QDRANT_COLLECTION"),
	}

	cfg.Blob = BlobConfig{
		Endpoint:   v.GetString("BLOB_ENDPOINT"),
		AccessKey:  v.GetString("BLOB_ACCESS_KEY"),
		SecretKey:  v.GetString("BLOB_SECRET_KEY"),
		Bucket:     v.GetString("BLOB_BUCKET"),
		UseSSL:     v.GetBool("BLOB_USE_SSL"),
		PresignTTL: parseDuration(v.GetString("BLOB_PRESIGN_TTL"), 30*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lifecycle = LifecycleConfig{
		BulkWorkers:  v.GetInt("LIFECYCLE_BULK_WORKERS"),
		StoreTimeout: parseDuration(v.GetString("LIFECYCLE_STORE_TIMEOUT"), 10*time.Second),
		LockTTL:      parseDuration(v.GetString("LIFECYCLE_LOCK_TTL"), 30*time.Second),
		LockWait:     parseDuration(v.GetString("LIFECYCLE_LOCK_WAIT"), 5*time.Second),
	}

	cfg.Pipeline = PipelineConfig{
		TaskQueueKey: v.GetString("PIPELINE_TASK_QUEUE_KEY"),
		CancelKeyTTL: parseDuration(v.GetString("PIPELINE_CANCEL_KEY_TTL"), 24*time.Hour),
		Workers:      v.GetInt("PIPELINE_WORKERS"),
		Retries:      v.GetInt("PIPELINE_RETRIES"),
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
	v.SetDefault("DB_NAME", "kb_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("QDRANT_HOST", "localhost")
	v.SetDefault("QDRANT_PORT", 6334)
	v.SetDefault("QDRANT_COLLECTION", "kb_chunks")

	v.SetDefault("BLOB_ENDPOINT", "localhost:9000")
	v.SetDefault("BLOB_ACCESS_KEY", "minioadmin")
	v.SetDefault("BLOB_SECRET_KEY", "minioadmin")
	v.SetDefault("BLOB_BUCKET", "kb-docs")
	v.SetDefault("BLOB_USE_SSL", false)
	v.SetDefault("BLOB_PRESIGN_TTL", "30m")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LIFECYCLE_BULK_WORKERS", 4)
	v.SetDefault("LIFECYCLE_STORE_TIMEOUT", "10s")
	v.SetDefault("LIFECYCLE_LOCK_TTL", "30s")
	v.SetDefault("LIFECYCLE_LOCK_WAIT", "5s")

	v.SetDefault("PIPELINE_TASK_QUEUE_KEY", "kb_ingest_tasks")
	v.SetDefault("PIPELINE_CANCEL_KEY_TTL", "24h")
	v.SetDefault("PIPELINE_WORKERS", 2)
	v.SetDefault("PIPELINE_RETRIES", 3)
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
