// Package normalizer turns one domain's raw records for a store and period
// into a comparable 0-100 sub-score.
package normalizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

// Inputs carries the raw records of a single store and period. Only the
// slice matching the normalized domain is read.
type Inputs struct {
	Theft    []signal.TheftIncident
	Rewards  []signal.RewardsSnapshot
	Traffic  []signal.TrafficSample
	Employee []signal.EmployeeSnapshot
}

// Len reports how many raw records back domain d.
func (in Inputs) Len(d signal.Domain) int {
	switch d {
	case signal.DomainTheft:
		return len(in.Theft)
	case signal.DomainRewards:
		return len(in.Rewards)
	case signal.DomainTraffic:
		return len(in.Traffic)
	case signal.DomainEmployee:
		return len(in.Employee)
	}
	return 0
}

// IDs returns the ids of the raw records backing domain d, in ascending order.
func (in Inputs) IDs(d signal.Domain) []snowflake.ID {
	ids := make([]snowflake.ID, 0, in.Len(d))
	switch d {
	case signal.DomainTheft:
		for _, r := range in.Theft {
			ids = append(ids, r.ID)
		}
	case signal.DomainRewards:
		for _, r := range in.Rewards {
			ids = append(ids, r.ID)
		}
	case signal.DomainTraffic:
		for _, r := range in.Traffic {
			ids = append(ids, r.ID)
		}
	case signal.DomainEmployee:
		for _, r := range in.Employee {
			ids = append(ids, r.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type Params struct {
	Theft           config.TheftPenalties
	Rewards         config.RewardsBlend
	SmoothingWindow int
}

func ParamsFrom(cfg config.ScoringConfig) Params {
	return Params{
		Theft:           cfg.Theft,
		Rewards:         cfg.Rewards,
		SmoothingWindow: cfg.SmoothingWindow,
	}
}

// Strategy computes an unclamped sub-score from non-empty inputs.
type Strategy func(Inputs, Params) float64

var strategies = map[signal.Domain]Strategy{
	signal.DomainTheft:    theftScore,
	signal.DomainRewards:  rewardsScore,
	signal.DomainTraffic:  trafficScore,
	signal.DomainEmployee: employeeScore,
}

// Normalize returns d's sub-score in [0,100], rounded to 4 decimals. It fails
// with healtherr.ErrInsufficientData when there are no records for d.
func Normalize(d signal.Domain, in Inputs, p Params) (float64, error) {
	strategy, ok := strategies[d]
	if !ok {
		return 0, fmt.Errorf("normalize %q: unsupported domain", d)
	}
	if in.Len(d) == 0 {
		return 0, fmt.Errorf("normalize %s: %w", d, healtherr.ErrInsufficientData)
	}
	return Round(Clamp(strategy(in, p)), 4), nil
}

func theftScore(in Inputs, p Params) float64 {
	score := 100.0
	for _, incident := range in.Theft {
		penalty := 0.0
		switch incident.Severity {
		case signal.SeverityHigh:
			penalty = p.Theft.High
		case signal.SeverityMedium:
			penalty = p.Theft.Medium
		case signal.SeverityLow:
			penalty = p.Theft.Low
		}
		if incident.Resolved {
			penalty *= p.Theft.ResolvedFactor
		}
		score -= penalty
	}
	return math.Max(score, 0)
}

func rewardsScore(in Inputs, p Params) float64 {
	var growth, engagement float64
	for _, snap := range in.Rewards {
		g := 0.0
		if snap.TotalMembers > 0 {
			g = float64(snap.NewMembers) / float64(snap.TotalMembers) * 100
		}
		growth += Clamp(g)
		engagement += Clamp(snap.EngagementPct)
	}
	n := float64(len(in.Rewards))
	growth /= n
	engagement /= n

	gw, ew := p.Rewards.Growth, p.Rewards.Engagement
	total := gw + ew
	if total <= 0 {
		gw, ew, total = 0.5, 0.5, 1
	}
	return (gw*growth + ew*engagement) / total
}

func trafficScore(in Inputs, p Params) float64 {
	samples := append([]signal.TrafficSample(nil), in.Traffic...)
	sort.SliceStable(samples, func(i, j int) bool {
		if !samples[i].Date.Equal(samples[j].Date) {
			return samples[i].Date.Before(samples[j].Date)
		}
		return samples[i].Hour < samples[j].Hour
	})

	window := p.SmoothingWindow
	if window < 1 {
		window = 1
	}

	var total, running float64
	for i, sample := range samples {
		running += sample.ConversionPct
		if i >= window {
			running -= samples[i-window].ConversionPct
		}
		size := window
		if i+1 < window {
			size = i + 1
		}
		total += running / float64(size)
	}
	return total / float64(len(samples))
}

func employeeScore(in Inputs, _ Params) float64 {
	var total float64
	for _, snap := range in.Employee {
		total += snap.Mean()
	}
	return total / float64(len(in.Employee))
}

// Clamp bounds v to [0,100]; NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
