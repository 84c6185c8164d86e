package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

// Loader reads the raw records a sub-score is computed from. Drill-downs use
// the same reads, narrowed to the record's persisted sources.
type Loader struct {
	signals signal.Service
}

func NewLoader(signals signal.Service) *Loader {
	return &Loader{signals: signals}
}

// Load returns domain d's records for storeID over the inclusive dates
// [from, to].
func (l *Loader) Load(ctx context.Context, d signal.Domain, storeID snowflake.ID, from, to time.Time) (Inputs, error) {
	filter := signal.Filter{StoreIDs: []snowflake.ID{storeID}, From: from, To: to}

	var (
		in  Inputs
		err error
	)
	switch d {
	case signal.DomainTheft:
		in.Theft, err = l.signals.TheftIncidents(ctx, filter)
	case signal.DomainRewards:
		in.Rewards, err = l.signals.RewardsSnapshots(ctx, filter)
	case signal.DomainTraffic:
		in.Traffic, err = l.signals.TrafficSamples(ctx, filter)
	case signal.DomainEmployee:
		in.Employee, err = l.signals.EmployeeSnapshots(ctx, filter)
	default:
		return Inputs{}, fmt.Errorf("load %q: unsupported domain", d)
	}
	if err != nil {
		return Inputs{}, err
	}
	return in, nil
}

// Normalize loads and scores d for a single store and date.
func (l *Loader) Normalize(ctx context.Context, d signal.Domain, storeID snowflake.ID, date time.Time, p Params) (float64, error) {
	in, err := l.Load(ctx, d, storeID, date, date)
	if err != nil {
		return 0, err
	}
	return Normalize(d, in, p)
}
