package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take precedence
// over file values. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("processor.base_url", "https://api.parallel.ai")
	v.SetDefault("processor.name", "base")
	v.SetDefault("processor.request_timeout_seconds", 30)
	v.SetDefault("webhook.require_signature", true)
	v.SetDefault("analyzer.model_name", "gemini-2.0-flash")
	v.SetDefault("analyzer.request_timeout_seconds", 60)
	v.SetDefault("reconciler.sweep_interval_seconds", 90)
	v.SetDefault("reconciler.max_concurrent", 4)
	v.SetDefault("reconciler.pending_max_age_minutes", 60)

	// Optional config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables with PROSPECT_ prefix
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys so AutomaticEnv resolves them reliably.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.port", "PROSPECT_SERVER_PORT"},
		{"server.log_level", "PROSPECT_SERVER_LOG_LEVEL"},
		{"database.url", "PROSPECT_DATABASE_URL"},
		{"processor.base_url", "PROSPECT_PROCESSOR_BASE_URL"},
		{"processor.api_key", "PROSPECT_PROCESSOR_API_KEY"},
		{"processor.name", "PROSPECT_PROCESSOR_NAME"},
		{"processor.request_timeout_seconds", "PROSPECT_PROCESSOR_REQUEST_TIMEOUT_SECONDS"},
		{"webhook.secret", "PROSPECT_WEBHOOK_SECRET"},
		{"webhook.require_signature", "PROSPECT_WEBHOOK_REQUIRE_SIGNATURE"},
		{"webhook.public_url", "PROSPECT_WEBHOOK_PUBLIC_URL"},
		{"analyzer.gemini_api_key", "PROSPECT_ANALYZER_GEMINI_API_KEY"},
		{"analyzer.model_name", "PROSPECT_ANALYZER_MODEL_NAME"},
		{"analyzer.request_timeout_seconds", "PROSPECT_ANALYZER_REQUEST_TIMEOUT_SECONDS"},
		{"reconciler.sweep_interval_seconds", "PROSPECT_RECONCILER_SWEEP_INTERVAL_SECONDS"},
		{"reconciler.max_concurrent", "PROSPECT_RECONCILER_MAX_CONCURRENT"},
		{"reconciler.pending_max_age_minutes", "PROSPECT_RECONCILER_PENDING_MAX_AGE_MINUTES"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
