package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .arena.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to arena! Let's configure your training server.")
	fmt.Println()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider for coaching",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	// 2. Quality tier.
	qualityPrompt := promptui.Select{
		Label: "Select quality tier",
		Items: []string{
			"lite   — fast & cheap (gpt-4o-mini / llama3)",
			"normal — balanced (gpt-4o / llama3)",
			"max    — highest quality (gpt-4 / llama3:70b)",
		},
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]

	// 3. Port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: "8787",
		Validate: func(input string) error {
			n, err := strconv.Atoi(input)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("must be a port number")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port selection: %w", err)
	}
	port, _ := strconv.Atoi(portStr)

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Quality = quality
	cfg.Model = GetPreset(provider, quality)
	cfg.Port = port

	// Remind about API key if the provider needs one.
	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: %s is not set. Coaching will fall back to built-in messages until it is.\n", envVar)
	}

	if err := cfg.Save(".arena.yml"); err != nil {
		return nil, err
	}
	fmt.Println("\nSaved configuration to .arena.yml")

	return cfg, nil
}
