package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envOnce sync.Once

// loadEnv loads the project-root .env exactly once. Real environment
// variables win over .env entries, so deployed settings are untouched.
func loadEnv() {
	envOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		configDir := filepath.Dir(filename)

		rootDir := filepath.Dir(configDir)
		envPath := filepath.Join(rootDir, ".env")

		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid boolean for %s: %q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
