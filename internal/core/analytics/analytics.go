// Package analytics derives presentation statistics from the ordered ball
// event log of a single innings. Every function is a pure projection:
// recomputing over the full log after each accepted ball gives the same
// answer as any incremental scheme.
package analytics

import "github.com/stumpline/cricket-live/internal/events"

// RunRate returns runs per over bowled so far. The second return is false
// before the first legal ball — the rate is undefined, not zero.
func RunRate(evts []events.BallEvent) (float64, bool) {
	runs, balls := 0, 0
	for _, e := range evts {
		runs += e.TotalRuns()
		if e.Extra.IsLegal() {
			balls++
		}
	}
	if balls == 0 {
		return 0, false
	}
	return float64(runs) / float64(balls) * 6, true
}

// RequiredRate returns the runs-per-over needed to reach the target with
// the legal balls remaining. It is undefined without a target or with no
// balls left.
func RequiredRate(evts []events.BallEvent, target, totalOvers int) (float64, bool) {
	if target <= 0 {
		return 0, false
	}
	runs, balls := 0, 0
	for _, e := range evts {
		runs += e.TotalRuns()
		if e.Extra.IsLegal() {
			balls++
		}
	}
	remaining := totalOvers*6 - balls
	if remaining <= 0 {
		return 0, false
	}
	return float64(target-runs) / float64(remaining) * 6, true
}

// Partnership is the current pair's stand since the last wicket.
type Partnership struct {
	Runs  int
	Balls int
}

// CurrentPartnership sums runs off the bat plus byes and leg-byes, and
// counts legal balls, since the most recent wicket (or the innings start).
func CurrentPartnership(evts []events.BallEvent) Partnership {
	var p Partnership
	for _, e := range evts {
		if e.Wicket {
			p = Partnership{}
			continue
		}
		p.Runs += e.BatRuns()
		if e.Extra == events.ExtraBye || e.Extra == events.ExtraLegBye {
			p.Runs += e.Runs
		}
		if e.Extra.IsLegal() {
			p.Balls++
		}
	}
	return p
}

// Manhattan returns the runs conceded in each over, indexed 0..currentOver.
// Byes and leg-byes carry no over-run credit and are excluded; wide and
// no-ball penalties are charged to the over in which they were bowled.
func Manhattan(evts []events.BallEvent) []int {
	maxOver := -1
	for _, e := range evts {
		if e.Over > maxOver {
			maxOver = e.Over
		}
	}
	if maxOver < 0 {
		return nil
	}
	overs := make([]int, maxOver+1)
	for _, e := range evts {
		credit := e.TotalRuns()
		if e.Extra == events.ExtraBye || e.Extra == events.ExtraLegBye {
			credit = 0
		}
		overs[e.Over] += credit
	}
	return overs
}

// Worm returns the cumulative innings total after each legal ball, one
// point per legal delivery. Runs conceded on intervening wides and
// no-balls are folded into the next point, so two innings' series overlay
// on a shared legal-ball axis.
func Worm(evts []events.BallEvent) []int {
	var series []int
	running := 0
	for _, e := range evts {
		running += e.TotalRuns()
		if e.Extra.IsLegal() {
			series = append(series, running)
		}
	}
	return series
}

// WagonWheel aggregates off-the-bat runs by shot direction. Only scoring
// strokes on deliveries without an extra flag are counted; untagged
// deliveries are skipped.
func WagonWheel(evts []events.BallEvent) map[string]int {
	wheel := make(map[string]int)
	for _, e := range evts {
		if e.Extra != events.ExtraNone || e.Runs <= 0 || e.Shot == "" {
			continue
		}
		wheel[e.Shot] += e.Runs
	}
	return wheel
}
