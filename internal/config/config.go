package config

import (
	"fmt"
	"os"
)

type Config struct {
	// Server
	Port        string
	Environment string
	BaseURL     string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Artifact roots
	HDFolder    string
	FinalFolder string

	// Object storage (public-URL uploads for AI providers)
	StorageURL    string
	StorageKey    string
	StorageBucket string

	// Selection token store
	TokenBackend string // "memory" or "redis"
	RedisAddr    string

	// WeChat mini-program (QR code generation)
	WechatAppID  string
	WechatSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		HDFolder:    getEnv("HD_FOLDER", "hd_images"),
		FinalFolder: getEnv("FINAL_FOLDER", "final_works"),

		StorageURL:    getEnv("STORAGE_URL", ""),
		StorageKey:    getEnv("STORAGE_KEY", ""),
		StorageBucket: getEnv("STORAGE_BUCKET", "effect-images"),

		TokenBackend: getEnv("SELECTION_TOKEN_BACKEND", "memory"),
		RedisAddr:    getEnv("REDIS_ADDR", "127.0.0.1:6379"),

		WechatAppID:  getEnv("WECHAT_APPID", ""),
		WechatSecret: getEnv("WECHAT_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenBackend != "memory" && c.TokenBackend != "redis" {
		return fmt.Errorf("SELECTION_TOKEN_BACKEND must be memory or redis, got %q", c.TokenBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
