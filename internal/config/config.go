package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	JWTSecret            string
	OpenAIAPIKey         string
	OpenAIModel          string
	DriveCredentialsFile string
	MaxContentChars      int
	ListCacheTTL         time.Duration
	EventSubjectBase     string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STDE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "STDE API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("max_content_chars", 0)
	v.SetDefault("list.cache_ttl", "5m")
	v.SetDefault("event.subject_base", "stde.evaluations")

	ttlString := v.GetString("list.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid list cache ttl: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		OpenAIAPIKey:         v.GetString("openai_api_key"),
		OpenAIModel:          v.GetString("openai.model"),
		DriveCredentialsFile: v.GetString("drive.credentials_file"),
		MaxContentChars:      v.GetInt("max_content_chars"),
		ListCacheTTL:         ttl,
		EventSubjectBase:     v.GetString("event.subject_base"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.MaxContentChars < 0 {
		cfg.MaxContentChars = 0
	}

	return cfg, nil
}
