package normalizer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = ParamsFrom(config.DefaultScoringConfig())

func date(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestTheftPenalties(t *testing.T) {
	in := Inputs{Theft: []signal.TheftIncident{
		{Severity: signal.SeverityHigh},
		{Severity: signal.SeverityMedium, Resolved: true},
		{Severity: signal.SeverityLow},
	}}
	got, err := Normalize(signal.DomainTheft, in, defaults)
	require.NoError(t, err)
	// 100 - 15 - 4 - 3
	assert.Equal(t, 78.0, got)
}

func TestTheftFloorsAtZero(t *testing.T) {
	var incidents []signal.TheftIncident
	for i := 0; i < 10; i++ {
		incidents = append(incidents, signal.TheftIncident{Severity: signal.SeverityHigh})
	}
	got, err := Normalize(signal.DomainTheft, Inputs{Theft: incidents}, defaults)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestInputsIDsFollowDomainSorted(t *testing.T) {
	in := Inputs{
		Theft:   []signal.TheftIncident{{ID: 30}, {ID: 10}, {ID: 20}},
		Traffic: []signal.TrafficSample{{ID: 5}},
	}
	assert.Equal(t, []snowflake.ID{10, 20, 30}, in.IDs(signal.DomainTheft))
	assert.Equal(t, []snowflake.ID{5}, in.IDs(signal.DomainTraffic))
	assert.Empty(t, in.IDs(signal.DomainRewards))
}

func TestRewardsBlend(t *testing.T) {
	in := Inputs{Rewards: []signal.RewardsSnapshot{{TotalMembers: 1000, NewMembers: 20, EngagementPct: 45.8}}}
	got, err := Normalize(signal.DomainRewards, in, defaults)
	require.NoError(t, err)
	assert.Equal(t, 23.9, got)

	zero, err := Normalize(signal.DomainRewards, Inputs{Rewards: []signal.RewardsSnapshot{{EngagementPct: 60}}}, defaults)
	require.NoError(t, err)
	assert.Equal(t, 30.0, zero)

	skewed := defaults
	skewed.Rewards = config.RewardsBlend{Growth: 1, Engagement: 3}
	got, err = Normalize(signal.DomainRewards, in, skewed)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*2+0.75*45.8, got, 1e-9)
}

func TestRewardsAveragesSnapshots(t *testing.T) {
	in := Inputs{Rewards: []signal.RewardsSnapshot{
		{TotalMembers: 100, NewMembers: 10, EngagementPct: 40},
		{TotalMembers: 100, NewMembers: 30, EngagementPct: 60},
	}}
	got, err := Normalize(signal.DomainRewards, in, defaults)
	require.NoError(t, err)
	assert.Equal(t, 0.5*20+0.5*50, got)
}

func TestTrafficMeanAndSmoothing(t *testing.T) {
	in := Inputs{Traffic: []signal.TrafficSample{
		{Date: date(1), Hour: 12, ConversionPct: 60},
		{Date: date(1), Hour: 9, ConversionPct: 40},
		{Date: date(1), Hour: 15, ConversionPct: 20},
	}}
	plain, err := Normalize(signal.DomainTraffic, in, defaults)
	require.NoError(t, err)
	assert.Equal(t, 40.0, plain)

	smoothed := defaults
	smoothed.SmoothingWindow = 2
	got, err := Normalize(signal.DomainTraffic, in, smoothed)
	require.NoError(t, err)
	// Ordered 40, 60, 20 -> trailing means 40, 50, 40.
	assert.Equal(t, Round(130.0/3, 4), got)
}

func TestEmployeeMean(t *testing.T) {
	in := Inputs{Employee: []signal.EmployeeSnapshot{{
		ProductivityPct: 92.5, AttendancePct: 95, TrainingPct: 80, SatisfactionPct: 89.2,
	}}}
	got, err := Normalize(signal.DomainEmployee, in, defaults)
	require.NoError(t, err)
	assert.Equal(t, 89.175, got)
}

func TestInsufficientData(t *testing.T) {
	for _, d := range signal.ScoredDomains {
		_, err := Normalize(d, Inputs{}, defaults)
		if !errors.Is(err, healtherr.ErrInsufficientData) {
			t.Fatalf("%s: expected insufficient data, got %v", d, err)
		}
	}
	_, err := Normalize(signal.DomainCampaign, Inputs{}, defaults)
	assert.Error(t, err)
}

func TestProperty_SubScoresStayInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pct := gen.Float64Range(0, 100)

	properties.Property("theft score is within [0,100]", prop.ForAll(
		func(severities []int, resolved bool) bool {
			if len(severities) == 0 {
				return true
			}
			in := Inputs{}
			for _, s := range severities {
				sev := []signal.Severity{signal.SeverityLow, signal.SeverityMedium, signal.SeverityHigh}[s]
				in.Theft = append(in.Theft, signal.TheftIncident{Severity: sev, Resolved: resolved})
			}
			got, err := Normalize(signal.DomainTheft, in, defaults)
			return err == nil && got >= 0 && got <= 100
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.Bool(),
	))

	properties.Property("rewards score is within [0,100]", prop.ForAll(
		func(total, added int64, engagement float64) bool {
			if added > total {
				added = total
			}
			in := Inputs{Rewards: []signal.RewardsSnapshot{{TotalMembers: total, NewMembers: added, EngagementPct: engagement}}}
			got, err := Normalize(signal.DomainRewards, in, defaults)
			return err == nil && got >= 0 && got <= 100
		},
		gen.Int64Range(0, 100000),
		gen.Int64Range(0, 100000),
		pct,
	))

	properties.Property("traffic score is within [0,100] for any window", prop.ForAll(
		func(conversions []float64, window int) bool {
			if len(conversions) == 0 {
				return true
			}
			in := Inputs{}
			for i, c := range conversions {
				in.Traffic = append(in.Traffic, signal.TrafficSample{Date: date(1 + i/24), Hour: i % 24, ConversionPct: c})
			}
			p := defaults
			p.SmoothingWindow = window
			got, err := Normalize(signal.DomainTraffic, in, p)
			return err == nil && got >= 0 && got <= 100
		},
		gen.SliceOf(pct),
		gen.IntRange(1, 10),
	))

	properties.Property("employee score is the mean of means", prop.ForAll(
		func(a, b, c, d float64) bool {
			in := Inputs{Employee: []signal.EmployeeSnapshot{{ProductivityPct: a, AttendancePct: b, TrainingPct: c, SatisfactionPct: d}}}
			got, err := Normalize(signal.DomainEmployee, in, defaults)
			return err == nil && math.Abs(got-(a+b+c+d)/4) < 1e-4
		},
		pct, pct, pct, pct,
	))

	properties.TestingRun(t)
}

func TestClampAndRound(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3))
	assert.Equal(t, 100.0, Clamp(130))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 1.2346, Round(1.23456, 4))
}
