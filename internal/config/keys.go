package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/autopilot/internal/llm"
)

// ErrNoAPIKey is returned when the selected provider needs a key and none
// is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// keyEnv maps providers that authenticate with an API key to their
// conventional environment variable.
var keyEnv = map[llm.Provider]string{
	llm.ProviderAnthropic: "ANTHROPIC_API_KEY",
	llm.ProviderGemini:    "GEMINI_API_KEY",
}

// NeedsAPIKey reports whether provider authenticates with an API key.
// Bedrock uses the AWS credential chain and Ollama needs nothing.
func NeedsAPIKey(provider string) bool {
	_, ok := keyEnv[llm.Provider(provider)]
	return ok
}

// GetAPIKey returns the API key for the configured provider. The provider's
// environment variable wins over the config file.
func GetAPIKey(cfg *Config) (string, error) {
	if cfg == nil {
		return "", ErrNoAPIKey
	}
	if env, ok := keyEnv[llm.Provider(cfg.LLM.Provider)]; ok {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}
	key := os.ExpandEnv(cfg.LLM.APIKey)
	if key != "" && !strings.HasPrefix(key, "${") {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// ValidateAPIKey checks the key format for provider. It does not call the
// provider.
func ValidateAPIKey(provider, key string) error {
	if !NeedsAPIKey(provider) {
		return nil
	}
	if key == "" {
		return ErrNoAPIKey
	}
	if llm.Provider(provider) == llm.ProviderAnthropic && !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	if len(key) < 20 {
		return fmt.Errorf("invalid %s API key format: key too short", provider)
	}
	return nil
}

// MaskAPIKey returns the key with everything but its first 7 and last 4
// characters hidden.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if cfg == nil {
		return KeySourceNone
	}
	if env, ok := keyEnv[llm.Provider(cfg.LLM.Provider)]; ok && os.Getenv(env) != "" {
		return KeySourceEnv
	}
	key := os.ExpandEnv(cfg.LLM.APIKey)
	if key != "" && !strings.HasPrefix(key, "${") {
		return KeySourceConfig
	}
	return KeySourceNone
}
