package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/scoring/normalizer"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

var belowThresholdMessages = map[signal.Domain]string{
	signal.DomainTheft:    "High theft incidents",
	signal.DomainRewards:  "Low rewards program performance",
	signal.DomainTraffic:  "Concerning drop in store traffic",
	signal.DomainEmployee: "Excessive employee mobile usage",
}

func weightOf(w config.DomainWeights, d signal.Domain) float64 {
	switch d {
	case signal.DomainTheft:
		return w.Theft
	case signal.DomainRewards:
		return w.Rewards
	case signal.DomainTraffic:
		return w.Traffic
	case signal.DomainEmployee:
		return w.Employee
	}
	return 0
}

// Compose returns the weighted mean of the present sub-scores, with weights
// renormalized over those domains.
func Compose(sub map[signal.Domain]float64, w config.DomainWeights) (float64, error) {
	var num, den float64
	for _, d := range signal.ScoredDomains {
		v, ok := sub[d]
		if !ok {
			continue
		}
		weight := weightOf(w, d)
		num += weight * v
		den += weight
	}
	if len(sub) == 0 {
		return 0, fmt.Errorf("compose: %w", healtherr.ErrInsufficientData)
	}
	if den <= 0 {
		// Present domains all carry zero weight; fall back to a plain mean.
		for _, v := range sub {
			num += v
		}
		den = float64(len(sub))
	}
	return normalizer.Round(normalizer.Clamp(num/den), 6), nil
}

// EvaluateAlerts derives alerts for the present sub-scores. trailing holds
// the prior-day average per domain and omits domains without history.
func EvaluateAlerts(sub, trailing map[signal.Domain]float64, rules config.AlertRules) []Alert {
	var alerts []Alert
	for _, d := range signal.ScoredDomains {
		score, ok := sub[d]
		if !ok {
			continue
		}
		if score < rules.CriticalThreshold {
			severity := SeverityWarning
			if score < rules.SevereThreshold {
				severity = SeverityCritical
			}
			alerts = append(alerts, Alert{
				Domain:    d,
				Condition: ConditionBelowThreshold,
				Severity:  severity,
				Message:   belowThresholdMessages[d],
				SubScore:  score,
				Reference: rules.CriticalThreshold,
			})
		}
		if avg, ok := trailing[d]; ok && avg-score > rules.DropDelta {
			alerts = append(alerts, Alert{
				Domain:    d,
				Condition: ConditionDrop,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("%s score dropped %.1f points below its %d-day average", title(d), avg-score, rules.TrailingDays),
				SubScore:  score,
				Reference: normalizer.Round(avg, 4),
			})
		}
	}
	SortAlerts(alerts)
	return alerts
}

// SortAlerts orders alerts by domain order, then condition.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		oi, oj := alerts[i].Domain.Order(), alerts[j].Domain.Order()
		if oi != oj {
			return oi < oj
		}
		return alerts[i].Condition < alerts[j].Condition
	})
}

type fingerprintAlert struct {
	Domain    signal.Domain `json:"d"`
	Condition Condition     `json:"c"`
	Severity  AlertSeverity `json:"s"`
	Message   string        `json:"m"`
	SubScore  string        `json:"v"`
	Reference string        `json:"r"`
}

type fingerprintBody struct {
	Scores  [4]string            `json:"scores"`
	Overall string               `json:"overall"`
	Weights config.DomainWeights `json:"weights"`
	Alerts  []fingerprintAlert   `json:"alerts"`
	Sources []string             `json:"sources"`
}

// Fingerprint hashes the record's content and the raw records it was computed
// from. Identity and timing fields are excluded so an unchanged computation
// yields the same value.
func Fingerprint(r CompositeHealthRecord) string {
	body := fingerprintBody{
		Overall: formatScore(&r.OverallScore),
		Weights: r.Weights.Data(),
		Alerts:  make([]fingerprintAlert, 0, len(r.Alerts)),
	}
	for i, d := range signal.ScoredDomains {
		body.Scores[i] = formatScore(r.SubScore(d))
	}
	for _, a := range r.Alerts {
		body.Alerts = append(body.Alerts, fingerprintAlert{
			Domain:    a.Domain,
			Condition: a.Condition,
			Severity:  a.Severity,
			Message:   a.Message,
			SubScore:  formatScore(&a.SubScore),
			Reference: formatScore(&a.Reference),
		})
	}
	body.Sources = make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		body.Sources = append(body.Sources, string(src.Domain)+":"+src.RecordID.String())
	}
	sort.Strings(body.Sources)
	raw, _ := json.Marshal(body)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func title(d signal.Domain) string {
	s := string(d)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
