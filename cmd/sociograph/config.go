package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// config holds environment-provided defaults for the command-line flags.
type config struct {
	DataDir       string
	CacheDir      string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	CacheTTL      time.Duration
	Seed          uint64
}

// loadConfig reads SOCIOGRAPH_* variables, optionally from a .env file in the working directory.
func loadConfig() *config {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return &config{
		DataDir:       getEnv("SOCIOGRAPH_DATA_DIR", "data"),
		CacheDir:      getEnv("SOCIOGRAPH_CACHE_DIR", filepath.Join(cacheDir, "sociograph")),
		CacheTTL:      getEnvDuration("SOCIOGRAPH_CACHE_TTL", 30*24*time.Hour),
		Seed:          uint64(getEnvInt("SOCIOGRAPH_SEED", 1)),
		Neo4jURI:      getEnv("SOCIOGRAPH_NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("SOCIOGRAPH_NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("SOCIOGRAPH_NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("SOCIOGRAPH_NEO4J_DATABASE", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return fallback
}
