package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Processor  ProcessorConfig  `mapstructure:"processor"  validate:"required"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// ProcessorConfig configures access to the external research processor.
type ProcessorConfig struct {
	// BaseURL is the root of the processor's task-run API.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// APIKey authenticates dispatch, result and status calls.
	APIKey string `mapstructure:"api_key" validate:"required"`

	// Name selects the processor tier used for new runs.
	Name string `mapstructure:"name"`

	// RequestTimeoutSeconds bounds each individual processor call so one slow
	// call cannot stall unrelated work.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gte=0"`
}

// WebhookConfig configures inbound completion notifications.
type WebhookConfig struct {
	// Secret is the shared HMAC secret for signature verification.
	// Empty means no signature can be verified; see RequireSignature.
	Secret string `mapstructure:"secret"`

	// RequireSignature rejects deliveries that cannot be verified (missing
	// secret or missing signature headers). Defaults to true; disable only in
	// development environments.
	RequireSignature bool `mapstructure:"require_signature"`

	// PublicURL is the externally reachable webhook endpoint registered with
	// the processor at dispatch time. Runs are dispatched without webhook
	// delivery unless this is an https URL; the reconciler then converges them.
	PublicURL string `mapstructure:"public_url"`
}

// AnalyzerConfig configures the secondary fit-analysis inference call.
type AnalyzerConfig struct {
	// GeminiAPIKey authenticates the analysis call. Empty disables enrichment.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// ModelName selects the Gemini model used for fit analysis.
	ModelName string `mapstructure:"model_name"`

	// RequestTimeoutSeconds bounds the analysis call.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gte=0"`
}

// ReconcilerConfig configures the stuck-job reconciliation sweep.
type ReconcilerConfig struct {
	// SweepIntervalSeconds is the fixed cadence between sweeps.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"gte=0"`

	// MaxConcurrent caps the per-sweep fan-out against the processor's
	// status endpoint.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=0"`

	// PendingMaxAgeMinutes is how long a pending row without a run ID may
	// linger before the sweep removes it as a failed dispatch orphan.
	PendingMaxAgeMinutes int `mapstructure:"pending_max_age_minutes" validate:"gte=0"`
}
