package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

const (
	Hours    = 24
	Weekdays = 7
)

// Scope selects stores: either the explicit ids or every store.
type Scope struct {
	StoreIDs []snowflake.ID `json:"store_ids,omitempty"`
	All      bool           `json:"all"`
}

type Request struct {
	Domain signal.Domain
	Scope  Scope
	From   time.Time
	To     time.Time
}

// Cell is one hour × weekday bucket. Value is nil when no samples fell in it.
type Cell struct {
	Value       *float64 `json:"value"`
	SampleCount int      `json:"sample_count"`
}

// Grid is indexed as Cells[hour][weekday] with Sunday = 0.
type Grid struct {
	Domain signal.Domain         `json:"domain"`
	Scope  Scope                 `json:"scope"`
	From   time.Time             `json:"from"`
	To     time.Time             `json:"to"`
	Cells  [Hours][Weekdays]Cell `json:"cells"`
}

type CorrelateRequest struct {
	A     signal.Domain
	B     signal.Domain
	Scope Scope
	From  time.Time
	To    time.Time
}

type Pair struct {
	Hour    int      `json:"hour"`
	Weekday int      `json:"weekday"`
	A       *float64 `json:"a"`
	B       *float64 `json:"b"`
	CountA  int      `json:"count_a"`
	CountB  int      `json:"count_b"`
}

type Correlation struct {
	A     *Grid  `json:"a"`
	B     *Grid  `json:"b"`
	Pairs []Pair `json:"pairs"`
}

// Pearson returns the correlation coefficient over cells where both grids
// have data, or nil when fewer than two such cells exist or either side is
// constant.
func (c *Correlation) Pearson() *float64 {
	var xs, ys []float64
	for _, p := range c.Pairs {
		if p.A == nil || p.B == nil {
			continue
		}
		xs = append(xs, *p.A)
		ys = append(ys, *p.B)
	}
	n := float64(len(xs))
	if len(xs) < 2 {
		return nil
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return nil
	}
	r := cov / math.Sqrt(vx*vy)
	r = math.Max(-1, math.Min(1, r))
	return &r
}
