package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"errtable/domain/measurement"
	"errtable/internal/errors"

	"gopkg.in/yaml.v3"
)

// Backend names
const (
	BackendNative  = "native"
	BackendRscript = "rscript"
)

// Config represents the complete application configuration
type Config struct {
	Log      LogConfig
	Backend  BackendConfig
	Analysis AnalysisConfig
	Profile  Profile
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// BackendConfig selects and configures the omnibus test backend
type BackendConfig struct {
	Kind          string
	RscriptPath   string
	RscriptScript string
	Timeout       time.Duration
	KeepWorkDir   bool
}

// AnalysisConfig holds ranking and loading settings
type AnalysisConfig struct {
	Alpha   float64
	Workers int
}

// Profile describes the experiment layout; it can be overridden from YAML
type Profile struct {
	Parameters          []int             `yaml:"parameters"`
	CaseStudyLabels     map[string]string `yaml:"case_study_labels"`
	ExcludedDirectories []string          `yaml:"excluded_directories"`
	SkipSubstring       string            `yaml:"skip_substring"`
	RankingExclude      []string          `yaml:"ranking_exclude"`
	VarianceExclude     []string          `yaml:"variance_exclude"`
	Deterministic       []string          `yaml:"deterministic"`
	DeterministicRepeat int               `yaml:"deterministic_repeat"`
}

// DefaultProfile is the layout of the original sampling experiments
func DefaultProfile() Profile {
	return Profile{
		Parameters:          []int{1, 2, 3},
		CaseStudyLabels:     map[string]string{"BerkeleyDBC": "BDB-C"},
		ExcludedDirectories: []string{"SinglePlots"},
		SkipSubstring:       "_norm",
		RankingExclude:      []string{"rand"},
		VarianceExclude:     []string{"twise"},
		Deterministic:       []string{"twise"},
		DeterministicRepeat: 100,
	}
}

// ParameterList returns the parameters as domain values
func (p Profile) ParameterList() []measurement.Parameter {
	out := make([]measurement.Parameter, len(p.Parameters))
	for i, v := range p.Parameters {
		out[i] = measurement.Parameter(v)
	}
	return out
}

// Label maps a case-study directory name to its display label
func (p Profile) Label(cs measurement.CaseStudy) string {
	if l, ok := p.CaseStudyLabels[string(cs)]; ok {
		return l
	}
	return string(cs)
}

// Conditions converts a name list to conditions
func Conditions(names []string) []measurement.Condition {
	out := make([]measurement.Condition, len(names))
	for i, n := range names {
		out[i] = measurement.Condition(n)
	}
	return out
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Log:      LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "INFO")},
		Backend:  *loadBackendConfig(),
		Analysis: *loadAnalysisConfig(),
	}

	profile := DefaultProfile()
	if path := os.Getenv("ERRTABLE_PROFILE"); path != "" {
		loaded, err := LoadProfile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load analysis profile")
		}
		profile = *loaded
	}
	config.Profile = profile

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// LoadProfile reads a YAML profile; fields it omits keep their defaults
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalidf("cannot read profile %s: %v", path, err)
	}
	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, errors.ConfigInvalidf("invalid profile %s: %v", path, err)
	}
	return &profile, nil
}

func loadBackendConfig() *BackendConfig {
	return &BackendConfig{
		Kind:          strings.ToLower(getEnvOrDefault("ERRTABLE_BACKEND", BackendNative)),
		RscriptPath:   getEnvOrDefault("RSCRIPT_PATH", "Rscript"),
		RscriptScript: getEnvOrDefault("RSCRIPT_SCRIPT", "PerformKruskalWallis.R"),
		Timeout:       getEnvDurationOrDefault("ERRTABLE_TIMEOUT", 10*time.Minute),
		KeepWorkDir:   getEnvBoolOrDefault("ERRTABLE_KEEP_WORKDIR", false),
	}
}

func loadAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		Alpha:   getEnvFloatOrDefault("ERRTABLE_ALPHA", 0.05),
		Workers: getEnvIntOrDefault("ERRTABLE_WORKERS", 4),
	}
}

func validateConfig(config *Config) error {
	switch config.Backend.Kind {
	case BackendNative:
	case BackendRscript:
		if config.Backend.RscriptScript == "" {
			return errors.ConfigInvalid("RSCRIPT_SCRIPT is required for the rscript backend")
		}
	default:
		return errors.ConfigInvalidf("unknown backend %q (want %s or %s)", config.Backend.Kind, BackendNative, BackendRscript)
	}
	if config.Backend.Timeout < 0 {
		return errors.ConfigInvalid("timeout must not be negative")
	}
	if config.Analysis.Alpha <= 0 || config.Analysis.Alpha >= 1 {
		return errors.ConfigInvalidf("alpha must be in (0, 1), got %v", config.Analysis.Alpha)
	}
	if config.Analysis.Workers < 1 {
		return errors.ConfigInvalid("workers must be at least 1")
	}
	return validateProfile(config.Profile)
}

func validateProfile(p Profile) error {
	if len(p.Parameters) == 0 {
		return errors.ConfigInvalid("profile needs at least one parameter")
	}
	seen := make(map[int]bool, len(p.Parameters))
	for _, v := range p.Parameters {
		if v < 1 {
			return errors.ConfigInvalidf("parameter %d must be positive", v)
		}
		if seen[v] {
			return errors.ConfigInvalidf("parameter %d listed twice", v)
		}
		seen[v] = true
	}
	if p.DeterministicRepeat < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("deterministic_repeat must be at least 1, got %d", p.DeterministicRepeat))
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
