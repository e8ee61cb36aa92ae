package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Environment       string
	LoggingConfig     LoggingConfig
	RedisConfig       RedisConfig
	PostgresConfig    PostgresConfig
	Neo4jConfig       Neo4jConfig
	CatalogConfig     CatalogConfig
	SavedRoutesConfig SavedRoutesConfig
	ClimateConfig     ClimateConfig
	PlannerConfig     PlannerConfig
	AuthConfig        AuthConfig
	CORSConfig        CORSConfig
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
}

// Catalog source kinds
const (
	CatalogSourceFile     = "file"
	CatalogSourceHTTP     = "http"
	CatalogSourcePostgres = "postgres"
	CatalogSourceNeo4j    = "neo4j"
)

// CatalogConfig selects where the airport dataset is read from
type CatalogConfig struct {
	Source   string // file, http, postgres or neo4j
	FilePath string
	FeedURL  string
	CacheTTL time.Duration // zero disables the Redis catalog cache
}

// Saved route backend kinds
const (
	SavedRoutesBackendFile  = "file"
	SavedRoutesBackendRedis = "redis"
)

// SavedRoutesConfig holds the saved route store configuration
type SavedRoutesConfig struct {
	Backend   string
	DataDir   string
	Namespace string
}

// ClimateConfig holds climate lookup configuration
type ClimateConfig struct {
	BaseURL            string
	CacheTTL           time.Duration
	CacheResetSchedule string // cron spec; empty disables
}

// PlannerConfig holds planner session retention
type PlannerConfig struct {
	SessionMaxIdle       time.Duration
	SessionSweepSchedule string // cron spec; empty disables
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	redisEnabled, _ := strconv.ParseBool(getEnv("REDIS_ENABLED", "false"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	catalogCacheTTL, err := time.ParseDuration(getEnv("CATALOG_CACHE_TTL", "24h"))
	if err != nil {
		catalogCacheTTL = 24 * time.Hour
	}
	climateCacheTTL, err := time.ParseDuration(getEnv("CLIMATE_CACHE_TTL", "168h"))
	if err != nil {
		climateCacheTTL = 7 * 24 * time.Hour
	}

	sessionMaxIdle, err := time.ParseDuration(getEnv("PLANNER_SESSION_MAX_IDLE", "24h"))
	if err != nil {
		sessionMaxIdle = 24 * time.Hour
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LoggingConfig: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RedisConfig: RedisConfig{
			Enabled:  redisEnabled,
			Host:     getEnv("REDIS_HOST", "redis"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		PostgresConfig: PostgresConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "flights"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "flights"),
			SSLMode:  getEnv("DB_SSLMODE", "verify-full"),
		},
		Neo4jConfig: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://neo4j:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
		},
		CatalogConfig: CatalogConfig{
			Source:   strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSourceFile)),
			FilePath: getEnv("CATALOG_FILE", "./public/airports_data.json"),
			FeedURL:  getEnv("CATALOG_FEED_URL", ""),
			CacheTTL: catalogCacheTTL,
		},
		SavedRoutesConfig: SavedRoutesConfig{
			Backend:   strings.ToLower(getEnv("SAVED_ROUTES_BACKEND", SavedRoutesBackendFile)),
			DataDir:   getEnv("SAVED_ROUTES_DIR", "./data"),
			Namespace: getEnv("SAVED_ROUTES_NAMESPACE", "airport-map-saved-routes"),
		},
		ClimateConfig: ClimateConfig{
			BaseURL:            getEnv("CLIMATE_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),
			CacheTTL:           climateCacheTTL,
			CacheResetSchedule: getEnv("CLIMATE_CACHE_RESET_SCHEDULE", "@daily"),
		},
		PlannerConfig: PlannerConfig{
			SessionMaxIdle:       sessionMaxIdle,
			SessionSweepSchedule: getEnv("PLANNER_SESSION_SWEEP_SCHEDULE", "@every 10m"),
		},
		AuthConfig: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
		},
		CORSConfig: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
	}, nil
}

// LoadTestConfig loads test configuration
func LoadTestConfig() *Config {
	return &Config{
		Port:          "0",
		Environment:   "test",
		LoggingConfig: LoggingConfig{Level: "error", Format: "text"},
		RedisConfig: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost"),
			Port: getEnv("REDIS_PORT", "6379"),
		},
		PostgresConfig: PostgresConfig{
			Host:    getEnv("DB_HOST", "localhost"),
			Port:    getEnv("DB_PORT", "5432"),
			User:    getEnv("DB_USER", "flights"),
			DBName:  getEnv("DB_NAME_TEST", "flights_test"),
			SSLMode: getEnv("DB_SSLMODE", "disable"),
		},
		CatalogConfig: CatalogConfig{
			Source:   CatalogSourceFile,
			FilePath: getEnv("CATALOG_FILE", "testdata/airports_data.json"),
		},
		SavedRoutesConfig: SavedRoutesConfig{
			Backend:   SavedRoutesBackendFile,
			DataDir:   os.TempDir(),
			Namespace: "airport-map-saved-routes-test",
		},
	}
}

// TestConfig returns a default test configuration
func TestConfig() *Config {
	cfg := LoadTestConfig()
	cfg.AuthConfig = AuthConfig{JWTSecret: "test-secret", Issuer: "flight-connections-test"}
	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if len(strings.TrimSpace(value)) == 0 {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
