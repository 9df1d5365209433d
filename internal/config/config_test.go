package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want 8787", cfg.Port)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".arena.yml")
	content := "provider: ollama\nmodel: llama3\nport: 9000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOllama {
		t.Errorf("Provider = %q, want ollama", cfg.Provider)
	}
	if cfg.Model != "llama3" {
		t.Errorf("Model = %q, want llama3", cfg.Model)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	// Non-overridden fields keep defaults.
	if cfg.CoachTimeoutSecs != 20 {
		t.Errorf("CoachTimeoutSecs = %d, want 20", cfg.CoachTimeoutSecs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARENA_PROVIDER", "ollama")
	t.Setenv("ARENA_MODEL", "llama3:70b")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOllama {
		t.Errorf("Provider = %q, want ollama", cfg.Provider)
	}
	if cfg.Model != "llama3:70b" {
		t.Errorf("Model = %q, want llama3:70b", cfg.Model)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty provider", func(c *Config) { c.Provider = "" }},
		{"unknown provider", func(c *Config) { c.Provider = "bard" }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"bad quality", func(c *Config) { c.Quality = "ultra" }},
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero coach timeout", func(c *Config) { c.CoachTimeoutSecs = 0 }},
		{"zero coach rpm", func(c *Config) { c.CoachRequestsPerMin = 0 }},
		{"negative debounce", func(c *Config) { c.AutosaveDebounceMS = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".arena.yml")

	cfg := DefaultConfig()
	cfg.Provider = ProviderOllama
	cfg.Model = "llama3"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != ProviderOllama || loaded.Model != "llama3" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestGetPresetFallsBack(t *testing.T) {
	if got := GetPreset("unknown", QualityNormal); got != "gpt-4o-mini" {
		t.Errorf("GetPreset fallback = %q, want gpt-4o-mini", got)
	}
	if got := GetPreset(ProviderOpenAI, QualityMax); got != "gpt-4" {
		t.Errorf("GetPreset(openai, max) = %q, want gpt-4", got)
	}
}
