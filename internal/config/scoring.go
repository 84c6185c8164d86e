package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DomainWeights are the relative weights of each sub-score in the overall
// health score. They are renormalized over the domains present on a date.
type DomainWeights struct {
	Theft    float64 `mapstructure:"theft" json:"theft"`
	Rewards  float64 `mapstructure:"rewards" json:"rewards"`
	Traffic  float64 `mapstructure:"traffic" json:"traffic"`
	Employee float64 `mapstructure:"employee" json:"employee"`
}

func (w DomainWeights) Sum() float64 {
	return w.Theft + w.Rewards + w.Traffic + w.Employee
}

type TheftPenalties struct {
	High           float64 `mapstructure:"high"`
	Medium         float64 `mapstructure:"medium"`
	Low            float64 `mapstructure:"low"`
	ResolvedFactor float64 `mapstructure:"resolvedFactor"`
}

type RewardsBlend struct {
	Growth     float64 `mapstructure:"growth"`
	Engagement float64 `mapstructure:"engagement"`
}

type AlertRules struct {
	CriticalThreshold float64 `mapstructure:"criticalThreshold"`
	SevereThreshold   float64 `mapstructure:"severeThreshold"`
	DropDelta         float64 `mapstructure:"dropDelta"`
	TrailingDays      int     `mapstructure:"trailingDays"`
}

// ScoringConfig is the deployment-tunable part of scoring. A computation run
// takes one snapshot and uses it throughout.
type ScoringConfig struct {
	Weights         DomainWeights  `mapstructure:"weights"`
	Theft           TheftPenalties `mapstructure:"theft"`
	Rewards         RewardsBlend   `mapstructure:"rewards"`
	SmoothingWindow int            `mapstructure:"smoothingWindow"`
	Alerts          AlertRules     `mapstructure:"alerts"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: DomainWeights{Theft: 0.3, Rewards: 0.2, Traffic: 0.25, Employee: 0.25},
		Theft: TheftPenalties{
			High:           15,
			Medium:         8,
			Low:            3,
			ResolvedFactor: 0.5,
		},
		Rewards:         RewardsBlend{Growth: 0.5, Engagement: 0.5},
		SmoothingWindow: 1,
		Alerts: AlertRules{
			CriticalThreshold: 70,
			SevereThreshold:   40,
			DropDelta:         10,
			TrailingDays:      7,
		},
	}
}

type ScoringConfigHolder struct {
	current atomic.Value // holds ScoringConfig
}

// NewStaticScoringConfigHolder returns a holder pinned to cfg, without
// file watching.
func NewStaticScoringConfigHolder(cfg ScoringConfig) *ScoringConfigHolder {
	holder := &ScoringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewScoringConfigHolder(log *zap.Logger) (*ScoringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.scoring")

	v := viper.New()
	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/storepulse")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setScoringDefaults(v, DefaultScoringConfig())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeScoringConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticScoringConfigHolder(cfg)
	if !fileFound {
		log.Info("scoring config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeScoringConfig(v)
		if err != nil {
			log.Warn("scoring config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		_ = holder.Set(updated)
		log.Info("scoring config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Set replaces the snapshot after validating cfg. Runs already in flight keep
// the snapshot they took.
func (h *ScoringConfigHolder) Set(cfg ScoringConfig) error {
	if err := ValidateScoringConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

// Get returns the current snapshot.
func (h *ScoringConfigHolder) Get() ScoringConfig {
	return h.current.Load().(ScoringConfig)
}

func setScoringDefaults(v *viper.Viper, d ScoringConfig) {
	v.SetDefault("scoring.weights.theft", d.Weights.Theft)
	v.SetDefault("scoring.weights.rewards", d.Weights.Rewards)
	v.SetDefault("scoring.weights.traffic", d.Weights.Traffic)
	v.SetDefault("scoring.weights.employee", d.Weights.Employee)
	v.SetDefault("scoring.theft.high", d.Theft.High)
	v.SetDefault("scoring.theft.medium", d.Theft.Medium)
	v.SetDefault("scoring.theft.low", d.Theft.Low)
	v.SetDefault("scoring.theft.resolvedFactor", d.Theft.ResolvedFactor)
	v.SetDefault("scoring.rewards.growth", d.Rewards.Growth)
	v.SetDefault("scoring.rewards.engagement", d.Rewards.Engagement)
	v.SetDefault("scoring.smoothingWindow", d.SmoothingWindow)
	v.SetDefault("scoring.alerts.criticalThreshold", d.Alerts.CriticalThreshold)
	v.SetDefault("scoring.alerts.severeThreshold", d.Alerts.SevereThreshold)
	v.SetDefault("scoring.alerts.dropDelta", d.Alerts.DropDelta)
	v.SetDefault("scoring.alerts.trailingDays", d.Alerts.TrailingDays)
}

func decodeScoringConfig(v *viper.Viper) (ScoringConfig, error) {
	// Unmarshal over AllSettings so file values merge with defaults key by key.
	var wrapper struct {
		Scoring ScoringConfig `mapstructure:"scoring"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ScoringConfig{}, err
	}
	if err := ValidateScoringConfig(wrapper.Scoring); err != nil {
		return ScoringConfig{}, err
	}
	return wrapper.Scoring, nil
}

func ValidateScoringConfig(cfg ScoringConfig) error {
	w := cfg.Weights
	if w.Theft < 0 || w.Rewards < 0 || w.Traffic < 0 || w.Employee < 0 {
		return errors.New("scoring.weights cannot be negative")
	}
	if w.Sum() <= 0 {
		return errors.New("scoring.weights must have a positive sum")
	}
	if cfg.Theft.High < 0 || cfg.Theft.Medium < 0 || cfg.Theft.Low < 0 {
		return errors.New("scoring.theft penalties cannot be negative")
	}
	if cfg.Theft.ResolvedFactor < 0 || cfg.Theft.ResolvedFactor > 1 {
		return errors.New("scoring.theft.resolvedFactor must be within [0,1]")
	}
	if cfg.Rewards.Growth < 0 || cfg.Rewards.Engagement < 0 || cfg.Rewards.Growth+cfg.Rewards.Engagement <= 0 {
		return errors.New("scoring.rewards blend must be non-negative with a positive sum")
	}
	if cfg.SmoothingWindow < 1 {
		return errors.New("scoring.smoothingWindow must be at least 1")
	}
	a := cfg.Alerts
	for name, value := range map[string]float64{
		"criticalThreshold": a.CriticalThreshold,
		"severeThreshold":   a.SevereThreshold,
		"dropDelta":         a.DropDelta,
	} {
		if value < 0 || value > 100 {
			return fmt.Errorf("scoring.alerts.%s must be within [0,100]", name)
		}
	}
	if a.TrailingDays < 1 {
		return errors.New("scoring.alerts.trailingDays must be at least 1")
	}
	return nil
}
