package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Load reads a .env file if one is present. Missing files are not fatal so
// container deployments can rely on real environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
}

// Getenv returns the value of key, or fallback when unset or empty.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetenvDuration parses key as a time.Duration, returning fallback when the
// variable is unset or malformed.
func GetenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %v", key, err)
		return fallback
	}
	return d
}
