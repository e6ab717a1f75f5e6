package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds the CLI defaults read from the environment. Command-line
// flags take precedence over every field.
type Config struct {
	Threads        int
	OutDir         string
	NotifyEndpoint string
	StopAfterMatch bool
}

// FromEnv reads VANITY_* variables, falling back to built-in defaults.
func FromEnv() Config {
	cfg := Config{
		Threads:        getEnvInt("VANITY_THREADS", runtime.NumCPU()),
		OutDir:         getEnv("VANITY_OUT_DIR", "out"),
		NotifyEndpoint: getEnv("VANITY_NTFY", ""),
		StopAfterMatch: getEnvBool("VANITY_STOP_AFTER_MATCH", false),
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
