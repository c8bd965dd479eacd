// Package gaps scans the deduplicated event stream for suspicious silences.
// Events are grouped per line; a gap is reported when the quiet interval
// between consecutive events far exceeds the line's own rhythm, and the set
// of gaps is folded into a single quality score on [0,100].
package gaps

import (
	"sort"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
)

const (
	// minEventsPerLine is the floor below which a line's cadence cannot be
	// established and no gaps are reported for it.
	minEventsPerLine = 5

	// floorThreshold is the smallest interval ever considered a gap.
	floorThreshold = 6 * time.Hour

	// medianMultiplier scales the line's median inter-event interval into
	// its gap threshold.
	medianMultiplier = 4

	// severityWeight converts a gap's severity ratio into quality points.
	severityWeight = 8.0
)

// Gap is one suspicious silence on a line.
type Gap struct {
	LineID   string        `json:"line_id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	// Severity is the gap duration over the line's threshold; 1.0 is the
	// smallest reportable gap.
	Severity float64 `json:"severity"`
}

// Report is the analyzer output for one event stream.
type Report struct {
	Gaps         []Gap   `json:"gaps"`
	LinesScanned int     `json:"lines_scanned"`
	QualityScore float64 `json:"quality_score"` // [0,100]
}

// Analyzer detects per-line time gaps. The zero value is not usable; build
// with New.
type Analyzer struct {
	floor      time.Duration
	multiplier int
}

// New builds an analyzer; non-positive arguments take the defaults.
func New(floor time.Duration, multiplier int) *Analyzer {
	if floor <= 0 {
		floor = floorThreshold
	}
	if multiplier <= 0 {
		multiplier = medianMultiplier
	}
	return &Analyzer{floor: floor, multiplier: multiplier}
}

// Analyze groups events per line, derives each line's gap threshold from its
// median inter-event interval, and reports every interval exceeding it.
// Output is deterministic for identical input: gaps are ordered by line id,
// then start time.
func (a *Analyzer) Analyze(events []domain.Event) *Report {
	byLine := make(map[string][]time.Time)
	for i := range events {
		byLine[events[i].LineID] = append(byLine[events[i].LineID], events[i].Timestamp)
	}

	report := &Report{LinesScanned: len(byLine)}

	lines := make([]string, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}
	sort.Strings(lines)

	for _, line := range lines {
		stamps := byLine[line]
		if len(stamps) < minEventsPerLine {
			continue
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

		threshold := a.lineThreshold(stamps)
		for i := 1; i < len(stamps); i++ {
			d := stamps[i].Sub(stamps[i-1])
			if d <= threshold {
				continue
			}
			report.Gaps = append(report.Gaps, Gap{
				LineID:   line,
				Start:    stamps[i-1],
				End:      stamps[i],
				Duration: d,
				Severity: float64(d) / float64(threshold),
			})
		}
	}

	report.QualityScore = a.score(report.Gaps)
	return report
}

// lineThreshold is the larger of the global floor and the line's median
// inter-event interval times the multiplier.
func (a *Analyzer) lineThreshold(stamps []time.Time) time.Duration {
	intervals := make([]time.Duration, 0, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		intervals = append(intervals, stamps[i].Sub(stamps[i-1]))
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })

	median := intervals[len(intervals)/2]
	if len(intervals)%2 == 0 {
		median = (intervals[len(intervals)/2-1] + intervals[len(intervals)/2]) / 2
	}

	threshold := median * time.Duration(a.multiplier)
	if threshold < a.floor {
		threshold = a.floor
	}
	return threshold
}

// score starts at 100 and subtracts severity-weighted points per gap, so the
// score degrades monotonically as gaps accumulate or deepen.
func (a *Analyzer) score(found []Gap) float64 {
	score := 100.0
	for _, g := range found {
		penalty := severityWeight * g.Severity
		if penalty > 25 {
			penalty = 25
		}
		score -= penalty
	}
	if score < 0 {
		score = 0
	}
	return score
}
