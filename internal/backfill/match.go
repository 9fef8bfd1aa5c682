// Package backfill aggregates synced usage into per-bundle-instance totals.
package backfill

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BytesPerMB is the divisor used for instance totals.
const BytesPerMB = 1048576

// Strategy records how an instance's total was matched.
type Strategy string

const (
	StrategyExact     Strategy = "exact"
	StrategyDateRange Strategy = "date_range"
)

// UsageGroup is usage summed per (trimmed ICCID, lower-case moniker, sequence).
type UsageGroup struct {
	ICCID    string
	Moniker  string
	Sequence int64
	Bytes    int64
}

// DailyUsage is usage summed per trimmed ICCID and calendar day.
type DailyUsage struct {
	ICCID string
	Date  time.Time
	Bytes int64
}

// Instance is a bundle instance as stored in the reporting store.
type Instance struct {
	SourceID string
	TenantID string
	ICCID    string
	Moniker  *string
	Sequence *int64
	Start    *time.Time
	End      *time.Time
}

// Assignment is the total computed for one instance.
type Assignment struct {
	SourceID string
	TenantID string
	TotalMB  float64
	Strategy Strategy
}

// Summary counts the outcome of one reconciliation.
type Summary struct {
	Instances          int
	ExactMatches       int
	DateRangeMatches   int
	Unmatched          int
	OverlappingPeriods int
}

// BytesToMB converts bytes to megabytes rounded half-to-even to 2 decimals.
func BytesToMB(b int64) float64 {
	return math.RoundToEven(float64(b)/BytesPerMB*100) / 100
}

func exactKey(iccid, moniker string, seq int64) string {
	return strings.TrimSpace(iccid) + "\x00" + strings.ToLower(moniker) + "\x00" + strconv.FormatInt(seq, 10)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Match assigns totals to instances. The exact strategy runs first; the
// date-range strategy only considers instances it left unmatched and that
// carry both a start and an end.
func Match(instances []Instance, groups []UsageGroup, daily []DailyUsage) ([]Assignment, Summary) {
	summary := Summary{Instances: len(instances)}

	exact := make(map[string]int64, len(groups))
	for _, g := range groups {
		exact[exactKey(g.ICCID, g.Moniker, g.Sequence)] += g.Bytes
	}

	byICCID := make(map[string][]DailyUsage)
	for _, d := range daily {
		key := strings.TrimSpace(d.ICCID)
		byICCID[key] = append(byICCID[key], DailyUsage{ICCID: key, Date: day(d.Date), Bytes: d.Bytes})
	}

	var (
		assignments []Assignment
		unmatched   []Instance
	)
	for _, in := range instances {
		if in.Moniker != nil && in.Sequence != nil {
			if bytes, ok := exact[exactKey(in.ICCID, *in.Moniker, *in.Sequence)]; ok {
				assignments = append(assignments, Assignment{
					SourceID: in.SourceID,
					TenantID: in.TenantID,
					TotalMB:  BytesToMB(bytes),
					Strategy: StrategyExact,
				})
				summary.ExactMatches++
				continue
			}
		}
		unmatched = append(unmatched, in)
	}

	for _, in := range unmatched {
		if in.Start == nil || in.End == nil {
			summary.Unmatched++
			continue
		}
		from, to := day(*in.Start), day(*in.End)
		var (
			bytes int64
			found bool
		)
		for _, d := range byICCID[strings.TrimSpace(in.ICCID)] {
			if d.Date.Before(from) || d.Date.After(to) {
				continue
			}
			bytes += d.Bytes
			found = true
		}
		if !found {
			summary.Unmatched++
			continue
		}
		assignments = append(assignments, Assignment{
			SourceID: in.SourceID,
			TenantID: in.TenantID,
			TotalMB:  BytesToMB(bytes),
			Strategy: StrategyDateRange,
		})
		summary.DateRangeMatches++
	}

	summary.OverlappingPeriods = CountOverlaps(instances)
	return assignments, summary
}

// CountOverlaps returns how many instances start before an earlier instance
// on the same ICCID has ended. Such periods are reported, not disambiguated.
func CountOverlaps(instances []Instance) int {
	byICCID := make(map[string][]Instance)
	for _, in := range instances {
		if in.Start == nil || in.End == nil {
			continue
		}
		key := strings.TrimSpace(in.ICCID)
		byICCID[key] = append(byICCID[key], in)
	}

	overlaps := 0
	for _, list := range byICCID {
		sort.Slice(list, func(i, j int) bool { return list[i].Start.Before(*list[j].Start) })
		var maxEnd time.Time
		for i, in := range list {
			if i > 0 && !in.Start.After(maxEnd) {
				overlaps++
			}
			if in.End.After(maxEnd) {
				maxEnd = *in.End
			}
		}
	}
	return overlaps
}
