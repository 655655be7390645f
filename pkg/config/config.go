package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	Debug   bool
	Port    string

	// Logging
	LogLevel string
	LogJSON  bool

	// Database
	DatabaseType string // "sqlite" (default) or "postgres"
	DatabasePath string // sqlite file path
	DatabaseURL  string // postgres DSN

	// Authentication
	JWTSecret string

	// Server working tree
	ServerDir string // root of the live server installation
	BackupDir string // where archives are written
	LockFile  string // single-instance guard

	// Update engine
	ReleaseFeedURL   string // remote build feed base URL
	ReleaseProject   string // project name on the feed (e.g. "paper")
	MarkerFile       string // persisted installed-build number
	SchedulerTick    int    // seconds between scheduler ticks
	CheckInterval    int    // hours before a version check goes stale
	CountdownMinutes int    // warning window before an install kicks players

	// RCON (live server control channel)
	RconAddress  string
	RconPassword string

	// Offsite replication (optional SFTP mirror of the backup dir)
	OffsiteEnabled  bool
	OffsiteHost     string
	OffsitePort     int
	OffsiteUser     string
	OffsitePassword string
	OffsitePath     string
}

var AppConfig *Config

// Load loads configuration from environment
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	serverDir := getEnv("SERVER_DIR", ".")

	config := &Config{
		AppName:      getEnv("APP_NAME", "craftops-agent"),
		Debug:        getEnvBool("DEBUG", false),
		Port:         getEnv("PORT", "8090"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		LogJSON:      getEnvBool("LOG_JSON", false),
		DatabaseType: getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(serverDir, "craftops.db")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		// Empty means local mode: the API serves without tokens
		JWTSecret:    getEnv("JWT_SECRET", ""),

		ServerDir: serverDir,
		BackupDir: getEnv("BACKUP_DIR", filepath.Join(serverDir, "backups")),
		LockFile:  getEnv("LOCK_FILE", filepath.Join(serverDir, ".craftops.lock")),

		ReleaseFeedURL:   getEnv("RELEASE_FEED_URL", "https://api.papermc.io/v2"),
		ReleaseProject:   getEnv("RELEASE_PROJECT", "paper"),
		MarkerFile:       getEnv("MARKER_FILE", filepath.Join(serverDir, ".installed_build")),
		SchedulerTick:    getEnvInt("SCHEDULER_TICK_SECONDS", 60),
		CheckInterval:    getEnvInt("CHECK_INTERVAL_HOURS", 6),
		CountdownMinutes: getEnvInt("COUNTDOWN_MINUTES", 5),

		RconAddress:  getEnv("RCON_ADDRESS", "127.0.0.1:25575"),
		RconPassword: getEnv("RCON_PASSWORD", ""),

		OffsiteEnabled:  getEnvBool("OFFSITE_ENABLED", false),
		OffsiteHost:     getEnv("OFFSITE_HOST", ""),
		OffsitePort:     getEnvInt("OFFSITE_PORT", 22),
		OffsiteUser:     getEnv("OFFSITE_USER", ""),
		OffsitePassword: getEnv("OFFSITE_PASSWORD", ""),
		OffsitePath:     getEnv("OFFSITE_PATH", "/backups"),
	}

	AppConfig = config
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Invalid boolean for %s, using default: %v", key, defaultValue)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Invalid integer for %s, using default: %d", key, defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}
