package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseURL      string
	DBDriver         string
	SslCertPath      string
	DBMaxOpenConns   int
	DBConnectTimeout time.Duration

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey         string
	EmbedModel       string
	EmbedDim         int
	EmbedBatchSize   int
	EmbedConcurrency int
	GenModel         string

	Port        string
	JWTSecret   string
	CORSOrigins []string

	ChunkSize       int
	ChunkOverlap    int
	MinChunkSize    int
	ChunkParagraphs bool
	DefaultProject  string

	LogLevel  string
	LogFormat string

	// Warnings lists the variables that could not be parsed and fell back
	// to their defaults. The caller logs them once a logger exists.
	Warnings []string
}

// LoadConfig loads the environment variables and return config.
// A .env file in the working directory is honoured when present.
func LoadConfig() *Config {

	_ = godotenv.Load()

	var env envReader
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBDriver:         getEnv("DB_DRIVER", ""),
		SslCertPath:      getEnv("SSL_CERT_PATH", ""),
		DBMaxOpenConns:   env.getInt("DB_MAX_OPEN_CONNS", 20),
		DBConnectTimeout: env.getDuration("DB_CONNECT_TIMEOUT", 30*time.Second),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:        getEnv("AWS_REGION", "us-east-2"),
		BucketName:       getEnv("BUCKET_NAME", ""),
		AIAPIKey:         getEnv("GEMINI_API_KEY", ""),
		EmbedModel:       getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:         env.getInt("EMBED_DIM", 768),
		EmbedBatchSize:   env.getInt("EMBED_BATCH_SIZE", 16),
		EmbedConcurrency: env.getInt("EMBED_CONCURRENCY", 2),
		GenModel:         getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:             getEnv("PORT", "3001"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		CORSOrigins:      env.getList("CORS_ORIGINS", []string{"*"}),
		ChunkSize:        env.getInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     env.getInt("CHUNK_OVERLAP", 200),
		MinChunkSize:     env.getInt("MIN_CHUNK_SIZE", 100),
		ChunkParagraphs:  env.getBool("CHUNK_PARAGRAPHS", false),
		DefaultProject:   getEnv("DEFAULT_PROJECT", "manual"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DBDriver == "" {
		cfg.DBDriver = DetectDriver(cfg.DatabaseURL)
	}
	cfg.Warnings = env.warnings

	return cfg
}

// DetectDriver infers the database driver from a connection string.
// Anything that is not a postgres URL is treated as a SQLite file path.
func DetectDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	if dsn == "" {
		return DriverPostgres
	}
	return DriverSQLite
}

// envReader reads typed variables and records the ones it had to ignore.
type envReader struct {
	warnings []string
}

func (e *envReader) warn(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func (e *envReader) getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.warn("%s=%q is not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func (e *envReader) getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.warn("%s=%q is not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.warn("%s=%q is not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func (e *envReader) getList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
