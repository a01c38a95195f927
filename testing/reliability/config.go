package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum emitting goroutines
	BufferSizeKB  uint32        // Session buffer size for saturation tests
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         os.Getenv("PROBEZ_RELIABILITY_LEVEL"),
		Duration:      parseDuration(getEnv("PROBEZ_RELIABILITY_DURATION", "10s")),
		MaxGoroutines: parseInt(getEnv("PROBEZ_RELIABILITY_MAX_GOROUTINES", "64")),
		BufferSizeKB:  uint32(parseInt(getEnv("PROBEZ_RELIABILITY_BUFFER_KB", "64"))), //nolint:gosec // small env values
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return 1
}

func parseDuration(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 10 * time.Second
}
