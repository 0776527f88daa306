package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	ListenAddr    string
	StoreBackend  string
	DBPath        string
	BadgerPath    string
	StoreStrict   bool
	Timezone      string
	VisionBackend string
	OllamaHost    string
	OllamaModel   string
	ClaudeAPIKey  string
	ClaudeModel   string
	ClaudeBaseURL string
	RetainImages  bool
	PhotoPath     string
	LogLevel      string
	LogFormat     string
	LogFile       string
	AppEnv        string
}

func Load() *Config {
	return &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		DBPath:        getEnv("DB_PATH", "/data/mealsnap.db"),
		BadgerPath:    getEnv("BADGER_PATH", "/data/badger"),
		StoreStrict:   getBool("STORE_STRICT"),
		Timezone:      getEnv("TIMEZONE", ""),
		VisionBackend: getEnv("VISION_BACKEND", "claude"),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llava"),
		ClaudeAPIKey:  firstEnv("ANTHROPIC_API_KEY", "CLAUDE_API_KEY"),
		ClaudeModel:   getEnv("CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
		ClaudeBaseURL: getEnv("CLAUDE_BASE_URL", ""),
		RetainImages:  getBool("RETAIN_IMAGES"),
		PhotoPath:     getEnv("PHOTO_LOCAL_PATH", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		AppEnv:        getEnv("APP_ENV", "production"),
	}
}

// Location returns the time zone that defines calendar days. An empty
// Timezone means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsDevelopment reports whether error responses may carry debug details.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// firstEnv returns the first of keys with a non-empty value.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
