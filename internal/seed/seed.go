package seed

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDays    = 60
	defaultSeed    = 42
	busyGroupName  = "Busy Stores"
	evenStartHour  = 17
	evenEndHour    = 22
	rewardsHour    = 20
	morningShiftAt = 9
	eveningShiftAt = 17
)

type demoStore struct {
	name    string
	city    string
	manager string
	members int64
	// theft is the per-hour chance of an incident.
	theft float64
	busy  bool
	// compliant stores see fewer mobile usage incidents.
	compliant bool
}

var demoStores = []demoStore{
	{name: "Downtown Mart", city: "Springfield", manager: "J. Rivera", members: 2500, theft: 0.5, busy: true},
	{name: "Riverside Convenience", city: "Springfield", manager: "A. Chen", members: 1800, theft: 0.3, busy: true},
	{name: "Oakwood Express", city: "Shelbyville", manager: "M. Okafor", members: 1500, theft: 0.2, compliant: true},
	{name: "Sunset Shop & Go", city: "Capital City", manager: "R. Patel", members: 900, theft: 0.2, compliant: true},
	{name: "Hillside Corner Store", city: "Ogdenville", manager: "S. Novak", members: 600, theft: 0.2},
}

type campaign struct {
	name       string
	startDay   int
	endDay     int // negative means until the end of the window
	engagement float64
}

var campaigns = []campaign{
	{"Double Points Weekend", 10, 12, 0.4},
	{"Free Coffee Month", 20, 50, 0.6},
	{"Summer Savings", 40, -1, 0.5},
	{"Birthday Rewards", 0, -1, 0},
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Stores  storedomain.Service
	Signals signal.Service
}

// Seeder loads a demo dataset through the public services so every record
// passes the same validation as live ingestion.
type Seeder struct {
	log     *zap.Logger
	clock   clock.Clock
	stores  storedomain.Service
	signals signal.Service
}

type Options struct {
	Days int
	Seed uint64
}

type Result struct {
	Skipped  bool           `json:"skipped"`
	StoreIDs []snowflake.ID `json:"store_ids"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Records  int            `json:"records"`
}

func New(p Params) *Seeder {
	return &Seeder{
		log:     p.Log.Named("seed"),
		clock:   p.Clock,
		stores:  p.Stores,
		signals: p.Signals,
	}
}

// Demo seeds five stores with Days of raw signals ending today. It does
// nothing when any store already exists.
func (s *Seeder) Demo(ctx context.Context, opts Options) (Result, error) {
	if opts.Days <= 0 {
		opts.Days = defaultDays
	}
	if opts.Seed == 0 {
		opts.Seed = defaultSeed
	}

	existing, err := s.stores.List(ctx, storedomain.ListStoreRequest{PageSize: 1})
	if err != nil {
		return Result{}, err
	}
	if len(existing.Stores) > 0 {
		s.log.Info("demo seed skipped, stores already present")
		return Result{Skipped: true}, nil
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed))
	to := clock.Today(s.clock)
	from := to.AddDate(0, 0, -opts.Days)
	result := Result{From: from, To: to}

	var busy []snowflake.ID
	for _, ds := range demoStores {
		opening := from.AddDate(-2, 0, 0)
		store, err := s.stores.Create(ctx, storedomain.CreateStoreRequest{
			Name:        ds.name,
			City:        ds.city,
			Manager:     ds.manager,
			OpeningDate: &opening,
		})
		if err != nil {
			return result, err
		}
		result.StoreIDs = append(result.StoreIDs, store.ID)
		if ds.busy {
			busy = append(busy, store.ID)
		}

		n, err := s.seedStore(ctx, rng, store.ID, ds, from, to)
		result.Records += n
		if err != nil {
			return result, err
		}
	}
	if _, err := s.stores.CreateGroup(ctx, storedomain.CreateGroupRequest{Name: busyGroupName, StoreIDs: busy}); err != nil {
		return result, err
	}

	s.log.Info("demo seed complete",
		zap.Int("stores", len(result.StoreIDs)),
		zap.Int("records", result.Records),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return result, nil
}

func (s *Seeder) seedStore(ctx context.Context, rng *rand.Rand, storeID snowflake.ID, ds demoStore, from, to time.Time) (int, error) {
	records := 0
	members := ds.members
	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		records++
	}

	for day, date := 0, from; !date.After(to); day, date = day+1, date.AddDate(0, 0, 1) {
		for hour := evenStartHour; hour <= evenEndHour; hour++ {
			if rng.Float64() >= ds.theft*0.1 {
				continue
			}
			_, err := s.signals.RecordTheftIncident(ctx, signal.TheftIncidentInput{
				StoreID:    storeID,
				OccurredAt: date.Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(60))*time.Minute),
				Severity:   severity(rng),
				Value:      float64(5 + rng.IntN(95)),
				Resolved:   rng.Float64() < 0.7,
			})
			record(err)
		}

		growth := normal(rng, 0.003, 0.001)
		if ds.busy {
			growth = normal(rng, 0.005, 0.002)
		}
		newMembers := max(int64(float64(members)*growth), 0)
		members += newMembers
		engagement, active := activeCampaigns(day, int(to.Sub(from).Hours()/24))
		_, err := s.signals.RecordRewardsSnapshot(ctx, signal.RewardsSnapshotInput{
			StoreID:         storeID,
			Date:            date,
			RecordedHour:    rewardsHour,
			TotalMembers:    members,
			NewMembers:      newMembers,
			EngagementPct:   clampPct(engagement * 100),
			ActiveCampaigns: active,
		})
		record(err)

		for hour := 6; hour <= 22; hour++ {
			_, err := s.signals.RecordTrafficSample(ctx, signal.TrafficSampleInput{
				StoreID:       storeID,
				Date:          date,
				Hour:          hour,
				VisitorCount:  visitors(rng, hour, date.Weekday(), ds.busy),
				ConversionPct: clampPct(normal(rng, 55, 12)),
			})
			record(err)
		}

		for _, shift := range []struct {
			name string
			hour int
		}{{"morning", morningShiftAt}, {"evening", eveningShiftAt}} {
			mobile := 1 + rng.IntN(6)
			if ds.compliant {
				mobile = rng.IntN(3)
			}
			_, err := s.signals.RecordEmployeeSnapshot(ctx, signal.EmployeeSnapshotInput{
				StoreID:              storeID,
				Date:                 date,
				RecordedHour:         shift.hour,
				Shift:                shift.name,
				ProductivityPct:      clampPct(normal(rng, 85, 6)),
				AttendancePct:        clampPct(normal(rng, 93, 4)),
				TrainingPct:          clampPct(normal(rng, 78, 10)),
				SatisfactionPct:      clampPct(normal(rng, 82, 8)),
				MobileUsageIncidents: mobile,
			})
			record(err)
		}
		if len(errs) > 0 {
			return records, errors.Join(errs...)
		}
	}

	for _, c := range campaigns {
		participation := 20 + rng.Float64()*60
		_, err := s.signals.RecordCampaignPerformance(ctx, signal.CampaignPerformanceInput{
			StoreID:          storeID,
			Date:             to,
			Campaign:         c.name,
			ParticipationPct: participation,
			RedemptionPct:    participation * (0.3 + rng.Float64()*0.5),
			ROI:              1.1 + rng.Float64()*2.4,
		})
		record(err)
	}
	return records, errors.Join(errs...)
}

func activeCampaigns(day, total int) (float64, int) {
	engagement, active := 0.0, 0
	for _, c := range campaigns {
		end := c.endDay
		if end < 0 {
			end = total
		}
		if c.engagement > 0 && day >= c.startDay && day <= end {
			engagement += c.engagement
			active++
		}
	}
	return engagement, active
}

func severity(rng *rand.Rand) signal.Severity {
	switch p := rng.Float64(); {
	case p < 0.4:
		return signal.SeverityLow
	case p < 0.8:
		return signal.SeverityMedium
	default:
		return signal.SeverityHigh
	}
}

// visitors follows a morning, lunch and evening peak with a weekend lift.
func visitors(rng *rand.Rand, hour int, wd time.Weekday, busy bool) int64 {
	var mean, sd float64
	switch {
	case hour >= 7 && hour <= 9:
		mean, sd = 40, 10
	case hour >= 11 && hour <= 13:
		mean, sd = 35, 8
	case hour >= 16 && hour <= 19:
		mean, sd = 50, 15
	case hour >= 20:
		mean, sd = 30, 8
	default:
		mean, sd = 20, 5
	}
	if busy {
		mean, sd = mean*1.7, sd*1.5
	}
	v := normal(rng, mean, sd)
	if (wd == time.Saturday || wd == time.Sunday) && hour >= 9 && hour <= 18 {
		v *= 1.3
	}
	return int64(math.Max(v, 0))
}

func normal(rng *rand.Rand, mean, sd float64) float64 {
	return mean + rng.NormFloat64()*sd
}

func clampPct(v float64) float64 {
	return math.Round(math.Min(math.Max(v, 0), 100)*100) / 100
}

// Enabled reports whether the process was asked to seed demo data.
func Enabled(cfg config.Config) bool {
	return cfg.SeedDemo && !cfg.IsProduction()
}
