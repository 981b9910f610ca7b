package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsUsableAsIs(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.EnableValidation)
	assert.True(t, cfg.EnableFallbacks)
	assert.Equal(t, DefaultRetryCount, cfg.RetryCount)
	assert.Equal(t, DefaultStepTimeout, cfg.StepTimeout)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL())
	assert.Equal(t, DefaultFallbackOrder, cfg.FallbackStrategies)
}

func TestNormalizeRepairsOutOfRangeValues(t *testing.T) {
	cfg := SeederConfig{
		RetryCount:      -3,
		StepTimeout:     0,
		CacheTTLMinutes: -1,
		Mapping:         MappingConfig{MinConfidence: 1.5},
	}
	cfg.Normalize()

	assert.Equal(t, DefaultRetryCount, cfg.RetryCount)
	assert.Equal(t, DefaultStepTimeout, cfg.StepTimeout)
	assert.Equal(t, DefaultCacheTTLMinutes, cfg.CacheTTLMinutes)
	assert.Equal(t, DefaultMinConfidence, cfg.Mapping.MinConfidence)
	assert.Equal(t, DefaultFallbackOrder, cfg.FallbackStrategies)
}

func TestMergeMapsPolicies(t *testing.T) {
	base := map[string]interface{}{
		"retry_count": 2,
		"mapping": map[string]interface{}{
			"min_confidence": 0.3,
			"enable_fuzzy":   true,
		},
		"fallback_strategies": []interface{}{"simple_profiles", "auth_only"},
	}
	overlay := map[string]interface{}{
		"retry_count": 5,
		"mapping": map[string]interface{}{
			"min_confidence": 0.6,
		},
		"fallback_strategies": []interface{}{"auth_only", "accounts_only"},
	}

	merged := MergeMaps(base, overlay)

	// Scalars replace
	assert.Equal(t, 5, merged["retry_count"])

	// Nested maps merge key by key
	mapping := merged["mapping"].(map[string]interface{})
	assert.Equal(t, 0.6, mapping["min_confidence"])
	assert.Equal(t, true, mapping["enable_fuzzy"])

	// Lists union preserving base order
	assert.Equal(t, []interface{}{"simple_profiles", "auth_only", "accounts_only"}, merged["fallback_strategies"])

	// Inputs are untouched
	assert.Equal(t, 2, base["retry_count"])
	assert.Equal(t, 0.3, base["mapping"].(map[string]interface{})["min_confidence"])
}

func TestMergeMapsDoesNotAliasOutput(t *testing.T) {
	base := map[string]interface{}{
		"mapping": map[string]interface{}{"strict_mode": false},
	}
	merged := MergeMaps(base, nil)

	merged["mapping"].(map[string]interface{})["strict_mode"] = true
	assert.Equal(t, false, base["mapping"].(map[string]interface{})["strict_mode"])
}

func TestLoadFileOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
primary_table: profiles
retry_count: 5
mapping:
  min_confidence: 0.55
  custom_mappings:
    profiles:
      email: contact_email
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "profiles", cfg.PrimaryTable)
	assert.Equal(t, 5, cfg.RetryCount)
	assert.Equal(t, 0.55, cfg.Mapping.MinConfidence)
	assert.Equal(t, "contact_email", cfg.Mapping.CustomMappings["profiles"]["email"])

	// Untouched fields keep their defaults
	assert.True(t, cfg.EnableValidation)
	assert.True(t, cfg.Mapping.EnablePatterns)
	assert.Equal(t, DefaultFallbackOrder, cfg.FallbackStrategies)
}

func TestLoadFileMissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
