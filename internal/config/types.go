package config

// QualityTier controls the model selection trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level arena configuration, corresponding to .arena.yml.
type Config struct {
	Provider           ProviderType `yaml:"provider" koanf:"provider"`
	Model              string       `yaml:"model" koanf:"model"`
	Quality            QualityTier  `yaml:"quality" koanf:"quality"`
	Port               int          `yaml:"port" koanf:"port"`
	DataDir            string       `yaml:"data_dir" koanf:"data_dir"`
	AllowAllOrigins    bool         `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	CoachTimeoutSecs   int          `yaml:"coach_timeout_secs" koanf:"coach_timeout_secs"`
	CoachRequestsPerMin int         `yaml:"coach_requests_per_min" koanf:"coach_requests_per_min"`
	AutosaveDebounceMS int          `yaml:"autosave_debounce_ms" koanf:"autosave_debounce_ms"`
}
