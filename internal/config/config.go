// Package config loads autopilot configuration from XDG paths, project
// overrides and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// ProjectFile is the name of the per-project override file.
const ProjectFile = ".autopilot.yaml"

// Config holds all configuration for autopilot.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Verification VerificationConfig `mapstructure:"verification"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Research     ResearchConfig     `mapstructure:"research"`
	Events       EventsConfig       `mapstructure:"events"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// LLMConfig selects the completion backend.
type LLMConfig struct {
	// Provider is anthropic, bedrock, gemini or ollama.
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	OllamaURL   string        `mapstructure:"ollama_url"`
	AWSRegion   string        `mapstructure:"aws_region"`
	AWSProfile  string        `mapstructure:"aws_profile"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig holds dispatcher retry and command settings.
type ExecutionConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	TestTimeout   time.Duration `mapstructure:"test_timeout"`
	DeployTimeout time.Duration `mapstructure:"deploy_timeout"`
	// TestCommand overrides the detected project test command.
	TestCommand string `mapstructure:"test_command"`
}

// ChecksConfig toggles individual verification checks.
type ChecksConfig struct {
	Syntax        bool `mapstructure:"syntax"`
	Tests         bool `mapstructure:"tests"`
	Linting       bool `mapstructure:"linting"`
	Security      bool `mapstructure:"security"`
	Criteria      bool `mapstructure:"criteria"`
	Documentation bool `mapstructure:"documentation"`
}

// VerificationConfig holds thresholds for the verification engine.
type VerificationConfig struct {
	Threshold         int          `mapstructure:"threshold"`
	Checks            ChecksConfig `mapstructure:"checks"`
	MaxLintErrors     int          `mapstructure:"max_lint_errors"`
	MaxSecurityIssues int          `mapstructure:"max_security_issues"`
	TestCommand       string       `mapstructure:"test_command"`
	LintCommand       string       `mapstructure:"lint_command"`
	// SecurityExclude holds doublestar globs skipped by syntax and security
	// scanning.
	SecurityExclude []string `mapstructure:"security_exclude"`
}

// OrchestratorConfig holds session flow settings.
type OrchestratorConfig struct {
	MaxAutoCorrections         int           `mapstructure:"max_auto_corrections"`
	PauseOnVerificationFailure bool          `mapstructure:"pause_on_verification_failure"`
	CorrectionDelay            time.Duration `mapstructure:"correction_delay"`
	EventBuffer                int           `mapstructure:"event_buffer"`
}

// StorageConfig locates the SQLite databases. Relative paths resolve
// against the project root.
type StorageConfig struct {
	// Driver is sqlite (pure Go) or sqlite3 (cgo).
	Driver     string `mapstructure:"driver"`
	StatePath  string `mapstructure:"state_path"`
	MemoryPath string `mapstructure:"memory_path"`
}

// ResearchConfig holds web research settings.
type ResearchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxResults   int           `mapstructure:"max_results"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// EventsConfig enables NATS publishing of lifecycle events.
type EventsConfig struct {
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables serving.
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File overrides the project log file. "-" disables file logging.
	File string `mapstructure:"file"`
}

// Load loads configuration. Precedence, highest first:
//  1. Environment variables (AUTOPILOT_*, ANTHROPIC_API_KEY, GEMINI_API_KEY)
//  2. Project config (.autopilot.yaml in the current directory or a parent)
//  3. User config ($XDG_CONFIG_HOME/autopilot/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a single file on top of defaults.
// Environment variables still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AUTOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("llm.api_key", "AUTOPILOT_LLM_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if !llm.Provider(c.LLM.Provider).Valid() {
		return fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if c.Execution.MaxRetries < 1 {
		return fmt.Errorf("execution.max_retries must be at least 1, got %d", c.Execution.MaxRetries)
	}
	if c.Verification.Threshold < 0 || c.Verification.Threshold > 100 {
		return fmt.Errorf("verification.threshold must be 0-100, got %d", c.Verification.Threshold)
	}
	if c.Orchestrator.MaxAutoCorrections < 0 {
		return fmt.Errorf("orchestrator.max_auto_corrections must not be negative")
	}
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver must be sqlite or sqlite3, got %q", c.Storage.Driver)
	}
	return nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	dir := getUserConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(filepath.Join(dir, "config.yaml"), cfg)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	for key, value := range Settings(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfig()
}

// Settings flattens cfg into dotted keys. Durations are written as strings
// so the file stays readable.
func Settings(cfg *Config) map[string]any {
	return map[string]any{
		"llm.provider":    cfg.LLM.Provider,
		"llm.model":       cfg.LLM.Model,
		"llm.api_key":     cfg.LLM.APIKey,
		"llm.ollama_url":  cfg.LLM.OllamaURL,
		"llm.aws_region":  cfg.LLM.AWSRegion,
		"llm.aws_profile": cfg.LLM.AWSProfile,
		"llm.temperature": cfg.LLM.Temperature,
		"llm.max_tokens":  cfg.LLM.MaxTokens,
		"llm.timeout":     cfg.LLM.Timeout.String(),

		"execution.max_retries":    cfg.Execution.MaxRetries,
		"execution.retry_delay":    cfg.Execution.RetryDelay.String(),
		"execution.test_timeout":   cfg.Execution.TestTimeout.String(),
		"execution.deploy_timeout": cfg.Execution.DeployTimeout.String(),
		"execution.test_command":   cfg.Execution.TestCommand,

		"verification.threshold":            cfg.Verification.Threshold,
		"verification.checks.syntax":        cfg.Verification.Checks.Syntax,
		"verification.checks.tests":         cfg.Verification.Checks.Tests,
		"verification.checks.linting":       cfg.Verification.Checks.Linting,
		"verification.checks.security":      cfg.Verification.Checks.Security,
		"verification.checks.criteria":      cfg.Verification.Checks.Criteria,
		"verification.checks.documentation": cfg.Verification.Checks.Documentation,
		"verification.max_lint_errors":      cfg.Verification.MaxLintErrors,
		"verification.max_security_issues":  cfg.Verification.MaxSecurityIssues,
		"verification.test_command":         cfg.Verification.TestCommand,
		"verification.lint_command":         cfg.Verification.LintCommand,
		"verification.security_exclude":     cfg.Verification.SecurityExclude,

		"orchestrator.max_auto_corrections":          cfg.Orchestrator.MaxAutoCorrections,
		"orchestrator.pause_on_verification_failure": cfg.Orchestrator.PauseOnVerificationFailure,
		"orchestrator.correction_delay":              cfg.Orchestrator.CorrectionDelay.String(),
		"orchestrator.event_buffer":                  cfg.Orchestrator.EventBuffer,

		"storage.driver":      cfg.Storage.Driver,
		"storage.state_path":  cfg.Storage.StatePath,
		"storage.memory_path": cfg.Storage.MemoryPath,

		"research.enabled":       cfg.Research.Enabled,
		"research.max_results":   cfg.Research.MaxResults,
		"research.fetch_timeout": cfg.Research.FetchTimeout.String(),

		"events.nats_url":     cfg.Events.NATSURL,
		"events.nats_subject": cfg.Events.NATSSubject,

		"metrics.addr": cfg.Metrics.Addr,

		"logging.level": cfg.Logging.Level,
		"logging.file":  cfg.Logging.File,
	}
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	settings := Settings(Default())
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetValue returns the display form of key. API keys are masked.
func GetValue(cfg *Config, key string) (string, error) {
	key = strings.ToLower(key)
	value, ok := Settings(cfg)[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	if key == "llm.api_key" {
		return MaskAPIKey(cfg.LLM.APIKey), nil
	}
	if list, ok := value.([]string); ok {
		return strings.Join(list, ","), nil
	}
	return fmt.Sprint(value), nil
}

// SetValue writes one key to the config file at path, keeping the other
// keys in the file. The value is parsed according to the key's type and the
// resulting file must still validate; otherwise the file is left unchanged.
func SetValue(path, key, value string) error {
	key = strings.ToLower(key)
	def, ok := Settings(Default())[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	parsed, err := parseValue(def, value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	previous, readErr := os.ReadFile(path)
	v := viper.New()
	v.SetConfigFile(path)
	if readErr == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	v.Set(key, parsed)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if _, err := LoadFromPath(path); err != nil {
		if readErr == nil {
			_ = os.WriteFile(path, previous, 0600)
		} else {
			_ = os.Remove(path)
		}
		return err
	}
	return nil
}

func parseValue(def any, value string) (any, error) {
	switch d := def.(type) {
	case bool:
		return strconv.ParseBool(value)
	case int:
		return strconv.Atoi(value)
	case float64:
		return strconv.ParseFloat(value, 64)
	case []string:
		if value == "" {
			return []string{}, nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case string:
		if _, err := time.ParseDuration(d); err == nil {
			if _, err := time.ParseDuration(value); err != nil {
				return nil, fmt.Errorf("invalid duration %q", value)
			}
		}
		return value, nil
	default:
		return value, nil
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file, or "" if none.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	for key, value := range Settings(Default()) {
		v.SetDefault(key, value)
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    string(llm.ProviderOllama),
			Model:       "llama3.1",
			OllamaURL:   "http://localhost:11434",
			AWSRegion:   "us-east-1",
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     90 * time.Second,
		},
		Execution: ExecutionConfig{
			MaxRetries:    3,
			RetryDelay:    5 * time.Second,
			TestTimeout:   60 * time.Second,
			DeployTimeout: 120 * time.Second,
		},
		Verification: VerificationConfig{
			Threshold: 70,
			Checks: ChecksConfig{
				Syntax:        true,
				Tests:         true,
				Linting:       true,
				Security:      true,
				Criteria:      true,
				Documentation: true,
			},
			MaxLintErrors:     10,
			MaxSecurityIssues: 0,
			SecurityExclude:   []string{"**/node_modules/**", "**/vendor/**", "**/*_test.go"},
		},
		Orchestrator: OrchestratorConfig{
			MaxAutoCorrections:         2,
			PauseOnVerificationFailure: true,
			EventBuffer:                256,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			StatePath:  filepath.Join(".autopilot", "state.db"),
			MemoryPath: filepath.Join(".autopilot", "memory.db"),
		},
		Research: ResearchConfig{
			Enabled:      true,
			MaxResults:   3,
			FetchTimeout: 20 * time.Second,
		},
		Events: EventsConfig{
			NATSSubject: "autopilot.events",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LLMConfig converts the llm section for llm.New.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:    llm.Provider(c.LLM.Provider),
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		OllamaURL:   c.LLM.OllamaURL,
		AWSRegion:   c.LLM.AWSRegion,
		AWSProfile:  c.LLM.AWSProfile,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
	}
}

// DisabledChecks lists the checks switched off in cfg.
func (c ChecksConfig) DisabledChecks() []models.CheckName {
	toggles := []struct {
		name models.CheckName
		on   bool
	}{
		{models.CheckSyntax, c.Syntax},
		{models.CheckTests, c.Tests},
		{models.CheckLinting, c.Linting},
		{models.CheckSecurity, c.Security},
		{models.CheckCriteria, c.Criteria},
		{models.CheckDocumentation, c.Documentation},
	}
	var off []models.CheckName
	for _, t := range toggles {
		if !t.on {
			off = append(off, t.name)
		}
	}
	return off
}

// ResolvePath makes a storage path absolute against projectRoot.
func ResolvePath(projectRoot, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

// getUserConfigDir returns the XDG config directory for autopilot.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "autopilot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "autopilot")
	}
	return filepath.Join(home, ".config", "autopilot")
}

// findProjectConfig searches for .autopilot.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ProjectFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}
