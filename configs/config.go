package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnv sync.Once

func Config(key string) string {
	loadEnv.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})

	return os.Getenv(key)
}

func ConfigOrDefault(key, fallback string) string {
	if v := Config(key); v != "" {
		return v
	}
	return fallback
}

// ConfigDuration parses values such as "10s" or "24h". Unparseable values fall back.
func ConfigDuration(key string, fallback time.Duration) time.Duration {
	v := Config(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid duration for %s (%q), using %s", key, v, fallback)
		return fallback
	}
	return d
}

func ConfigInt(key string, fallback int) int {
	v := Config(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ Invalid integer for %s (%q), using %d", key, v, fallback)
		return fallback
	}
	return n
}
