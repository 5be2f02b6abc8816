package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultJWTSecret is the placeholder used when JWT_SECRET is unset.
// Validate rejects it.
const DefaultJWTSecret = "your-secret-key-change-in-production"

// Storage backends.
const (
	BackendJSON      = "json"
	BackendMongo     = "mongo"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	ServerAddress string
	JWTSecret     string
	JWTExpiration time.Duration
	CORSOrigins   []string

	StoreBackend string
	DataDir      string
	MongoURI     string
	MongoDB      string
	PostgresDSN  string

	FirebaseProjectID       string
	FirebaseCredentialsJSON string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	AdminEmail        string
	AdminPasswordHash string

	AnalyticsSchedule string
	SeedCenters       bool
	WatchChanges      bool

	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		JWTSecret:     getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		CORSOrigins:   strings.Split(getEnv("CORS_ORIGINS", "*"), ","),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendJSON)),
		DataDir:      getEnv("DATA_DIR", "./data"),
		MongoURI:     getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGODB_DB", "lotusmap"),
		PostgresDSN:  getEnv("DATABASE_URL", ""),

		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PWD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),

		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		AnalyticsSchedule: getEnv("ANALYTICS_SCHEDULE", "5 0 * * *"),
		SeedCenters:       getEnvBool("SEED_CENTERS", true),
		WatchChanges:      getEnvBool("WATCH_CHANGES", true),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// Validate reports settings the API server must not start with.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.JWTSecret) {
	case "":
		return errors.New("JWT_SECRET must be set")
	case DefaultJWTSecret:
		return errors.New("JWT_SECRET must not be the built-in placeholder")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultValue
}
