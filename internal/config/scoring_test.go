package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultScoringConfigIsValid(t *testing.T) {
	cfg := DefaultScoringConfig()
	require.NoError(t, ValidateScoringConfig(cfg))
	assert.InDelta(t, 1.0, cfg.Weights.Sum(), 1e-9)
}

func TestValidateScoringConfigRejects(t *testing.T) {
	cases := map[string]func(*ScoringConfig){
		"negative weight":  func(c *ScoringConfig) { c.Weights.Theft = -1 },
		"zero weights":     func(c *ScoringConfig) { c.Weights = DomainWeights{} },
		"resolved factor":  func(c *ScoringConfig) { c.Theft.ResolvedFactor = 2 },
		"rewards blend":    func(c *ScoringConfig) { c.Rewards = RewardsBlend{} },
		"smoothing window": func(c *ScoringConfig) { c.SmoothingWindow = 0 },
		"threshold":        func(c *ScoringConfig) { c.Alerts.CriticalThreshold = 120 },
		"trailing days":    func(c *ScoringConfig) { c.Alerts.TrailingDays = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultScoringConfig()
			mutate(&cfg)
			assert.Error(t, ValidateScoringConfig(cfg))
		})
	}
}

func TestNewScoringConfigHolderFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewScoringConfigHolder(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultScoringConfig(), holder.Get())
}

func TestStaticHolderReturnsPinnedSnapshot(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.Weights.Theft = 1
	holder := NewStaticScoringConfigHolder(cfg)

	snapshot := holder.Get()
	snapshot.Weights.Theft = 5

	assert.Equal(t, 1.0, holder.Get().Weights.Theft)
}

func TestNewScoringConfigHolderMergesFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := "scoring:\n  weights:\n    theft: 0.5\n  alerts:\n    criticalThreshold: 60\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.yml"), []byte(content), 0o600))

	holder, err := NewScoringConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 0.5, cfg.Weights.Theft)
	assert.Equal(t, 0.2, cfg.Weights.Rewards)
	assert.Equal(t, 60.0, cfg.Alerts.CriticalThreshold)
	assert.Equal(t, 7, cfg.Alerts.TrailingDays)
}

func TestHolderSetRejectsInvalidAndKeepsSnapshot(t *testing.T) {
	holder := NewStaticScoringConfigHolder(DefaultScoringConfig())

	bad := DefaultScoringConfig()
	bad.Weights = DomainWeights{}
	require.Error(t, holder.Set(bad))
	assert.Equal(t, DefaultScoringConfig(), holder.Get())

	next := DefaultScoringConfig()
	next.Alerts.DropDelta = 5
	require.NoError(t, holder.Set(next))
	assert.Equal(t, 5.0, holder.Get().Alerts.DropDelta)
}
