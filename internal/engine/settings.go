package engine

import (
	"runtime"
	"time"

	"welfare-recommender/internal/common/config"
	"welfare-recommender/internal/engine/ranking"
	"welfare-recommender/internal/engine/scoring"
)

const (
	DefaultFetchTimeout = 3 * time.Second
	DefaultLimit        = 20
	DefaultMaxLimit     = 100
	DefaultNotifyTopN   = 5
)

// Settings tune one Engine instance.
type Settings struct {
	Weights            scoring.Weights
	Thresholds         ranking.Thresholds
	CacheTTL           time.Duration
	FetchTimeout       time.Duration
	ScoringConcurrency int
	DefaultLimit       int
	MaxLimit           int
	NotifyTopN         int
}

func DefaultSettings() Settings {
	return Settings{
		Weights:            scoring.DefaultWeights(),
		Thresholds:         ranking.DefaultThresholds(),
		FetchTimeout:       DefaultFetchTimeout,
		ScoringConcurrency: runtime.GOMAXPROCS(0),
		DefaultLimit:       DefaultLimit,
		MaxLimit:           DefaultMaxLimit,
		NotifyTopN:         DefaultNotifyTopN,
	}
}

// SettingsFromConfig maps the engine section of the application config.
// Zero values fall back to DefaultSettings.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	e := cfg.Engine

	if e.Weights.Sum() > 0 {
		s.Weights = scoring.Weights{
			Eligibility:  e.Weights.Eligibility,
			Benefit:      e.Weights.Benefit,
			Deadline:     e.Weights.Deadline,
			Popularity:   e.Weights.Popularity,
			Completeness: e.Weights.Completeness,
		}
	}
	if e.Thresholds != (config.ThresholdsConfig{}) {
		s.Thresholds = ranking.Thresholds{
			PartialMatch:   e.Thresholds.PartialMatch,
			HighPriority:   e.Thresholds.HighPriority,
			MediumPriority: e.Thresholds.MediumPriority,
		}
	}
	if e.CacheTTL > 0 {
		s.CacheTTL = config.GetDuration(e.CacheTTL)
	}
	if e.FetchTimeout > 0 {
		s.FetchTimeout = config.GetDuration(e.FetchTimeout)
	}
	if e.ScoringConcurrency > 0 {
		s.ScoringConcurrency = e.ScoringConcurrency
	}
	if e.DefaultLimit > 0 {
		s.DefaultLimit = e.DefaultLimit
	}
	if e.MaxLimit > 0 {
		s.MaxLimit = e.MaxLimit
	}
	if cfg.Notifications.SNS.TopN > 0 {
		s.NotifyTopN = cfg.Notifications.SNS.TopN
	}
	return s
}

func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = d.FetchTimeout
	}
	if s.ScoringConcurrency <= 0 {
		s.ScoringConcurrency = d.ScoringConcurrency
	}
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = d.DefaultLimit
	}
	if s.MaxLimit <= 0 {
		s.MaxLimit = d.MaxLimit
	}
	if s.DefaultLimit > s.MaxLimit {
		s.DefaultLimit = s.MaxLimit
	}
	if s.NotifyTopN <= 0 {
		s.NotifyTopN = d.NotifyTopN
	}
	return s
}

// limit resolves a requested limit: 0 selects the default, anything above
// the maximum is capped.
func (s Settings) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.DefaultLimit
	case requested > s.MaxLimit:
		return s.MaxLimit
	default:
		return requested
	}
}
