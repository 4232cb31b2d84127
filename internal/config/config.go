package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration, loaded from the environment with
// sensible defaults.
type Config struct {
	Port        string
	DatabaseURL string

	MinStep             int
	MaxStep             int
	AllowCreateOnSubmit bool
	SessionTTL          time.Duration

	OpenAIAPIKey   string
	Model          string
	QuestionsModel string
	LLMTimeout     time.Duration
}

// Load reads the configuration from environment variables.  DATABASE_URL is
// the only required setting.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("MIN_STEP", 1)
	v.SetDefault("MAX_STEP", 7)
	v.SetDefault("ALLOW_CREATE_ON_SUBMIT", true)
	v.SetDefault("SESSION_TTL", time.Duration(0))
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("LLM_TIMEOUT", 60*time.Second)

	cfg := &Config{
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		MinStep:             v.GetInt("MIN_STEP"),
		MaxStep:             v.GetInt("MAX_STEP"),
		AllowCreateOnSubmit: v.GetBool("ALLOW_CREATE_ON_SUBMIT"),
		SessionTTL:          v.GetDuration("SESSION_TTL"),
		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		Model:               v.GetString("OPENAI_MODEL"),
		QuestionsModel:      v.GetString("OPENAI_MODEL_QUESTIONS"),
		LLMTimeout:          v.GetDuration("LLM_TIMEOUT"),
	}
	if cfg.QuestionsModel == "" {
		cfg.QuestionsModel = cfg.Model
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	if cfg.MinStep < 1 || cfg.MaxStep < cfg.MinStep {
		return nil, errors.New("invalid step range configuration")
	}
	return cfg, nil
}
