package util

import (
	"os"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("[Config] No .env file found, using system environment variables")
	}
}

// lookup parses the variable key with parse and falls back to def when it is
// unset or does not parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn("[Config] Ignoring malformed variable", "key", key, "value", raw)
		return def
	}
	return v
}

// GetEnv returns the variable or the empty string.
func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvString(key string, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

func GetEnvNumeric(key string, defaultValue int) float64 {
	return lookup(key, float64(defaultValue), func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvBool accepts the forms understood by strconv.ParseBool.
func GetEnvBool(key string, defaultValue bool) bool {
	return lookup(key, defaultValue, strconv.ParseBool)
}

// GetEnvMillis reads a non-negative duration given in milliseconds.
func GetEnvMillis(key string, defaultValue time.Duration) time.Duration {
	ms := GetEnvNumeric(key, int(defaultValue.Milliseconds()))
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms * float64(time.Millisecond))
}
