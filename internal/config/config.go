package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values, applied defensively wherever a field is unset
const (
	DefaultRetryCount      = 2
	DefaultStepTimeout     = 30 * time.Second
	DefaultCacheTTLMinutes = 15
	DefaultMinConfidence   = 0.3
)

// DefaultFallbackOrder is the fallback cascade used when the config names none
var DefaultFallbackOrder = []string{"simple_profiles", "accounts_only", "auth_only"}

// MappingConfig tunes column mapping
type MappingConfig struct {
	StrictMode     bool                         `yaml:"strict_mode"`
	EnablePatterns bool                         `yaml:"enable_patterns"`
	EnableFuzzy    bool                         `yaml:"enable_fuzzy"`
	MinConfidence  float64                      `yaml:"min_confidence"`
	CustomMappings map[string]map[string]string `yaml:"custom_mappings"`
}

// SeederConfig is the full options surface of the engine
type SeederConfig struct {
	PrimaryTable       string        `yaml:"primary_table"`
	EnableValidation   bool          `yaml:"enable_validation"`
	EnableAutoFixes    bool          `yaml:"enable_auto_fixes"`
	EnableRollback     bool          `yaml:"enable_rollback"`
	EnableCaching      bool          `yaml:"enable_caching"`
	EnableFallbacks    bool          `yaml:"enable_fallbacks"`
	RetryCount         int           `yaml:"retry_count"`
	StepTimeout        time.Duration `yaml:"step_timeout"`
	CacheTTLMinutes    int           `yaml:"cache_ttl_minutes"`
	Mapping            MappingConfig `yaml:"mapping"`
	FallbackStrategies []string      `yaml:"fallback_strategies"`
}

// DefaultConfig returns a fully-populated configuration
func DefaultConfig() SeederConfig {
	return SeederConfig{
		EnableValidation: true,
		EnableAutoFixes:  true,
		EnableRollback:   true,
		EnableCaching:    true,
		EnableFallbacks:  true,
		RetryCount:       DefaultRetryCount,
		StepTimeout:      DefaultStepTimeout,
		CacheTTLMinutes:  DefaultCacheTTLMinutes,
		Mapping: MappingConfig{
			EnablePatterns: true,
			EnableFuzzy:    true,
			MinConfidence:  DefaultMinConfidence,
		},
		FallbackStrategies: append([]string(nil), DefaultFallbackOrder...),
	}
}

// Normalize repairs out-of-range values in place
func (c *SeederConfig) Normalize() {
	if c.RetryCount < 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.CacheTTLMinutes <= 0 {
		c.CacheTTLMinutes = DefaultCacheTTLMinutes
	}
	if c.Mapping.MinConfidence <= 0 || c.Mapping.MinConfidence > 1 {
		c.Mapping.MinConfidence = DefaultMinConfidence
	}
	if len(c.FallbackStrategies) == 0 {
		c.FallbackStrategies = append([]string(nil), DefaultFallbackOrder...)
	}
}

// CacheTTL returns the cache TTL as a duration
func (c *SeederConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// LoadFile reads a yaml seed-config file and overlays it onto the defaults
func LoadFile(path string) (SeederConfig, error) {
	defaults := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("reading config file: %w", err)
	}

	var overlay map[string]interface{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return defaults, fmt.Errorf("parsing config file: %w", err)
	}

	var base map[string]interface{}
	baseBytes, err := yaml.Marshal(defaults)
	if err != nil {
		return defaults, fmt.Errorf("encoding defaults: %w", err)
	}
	if err := yaml.Unmarshal(baseBytes, &base); err != nil {
		return defaults, fmt.Errorf("decoding defaults: %w", err)
	}

	merged := MergeMaps(base, overlay)

	mergedBytes, err := yaml.Marshal(merged)
	if err != nil {
		return defaults, fmt.Errorf("encoding merged config: %w", err)
	}
	cfg := SeederConfig{}
	if err := yaml.Unmarshal(mergedBytes, &cfg); err != nil {
		return defaults, fmt.Errorf("decoding merged config: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}
