// Package dls computes Duckworth-Lewis-Stern revised targets and par
// scores for rain-shortened chases.
package dls

import (
	"errors"
	"fmt"
	"math"
)

var ErrBadInput = errors.New("invalid dls input")

// Input describes the chase at the point of interruption.
//
// OversAvailable is the number of full overs the chasing side actually
// received before the innings was cut short. Team1Resources overrides the
// setting side's resource percentage when their innings was itself
// interrupted; zero means the full allocation for the scheduled overs,
// which is 100% only for a 50-over match.
type Input struct {
	Team1Runs      int
	TotalOvers     int
	OversAvailable int
	WicketsLost    int
	RunsSoFar      int
	Team1Resources float64
	G50            int
}

// Result carries the revised target and the resource arithmetic behind it.
// Percentages are rounded to two decimals; the target is rounded up.
type Result struct {
	RevisedTarget         int
	ResourcesUsedPct      float64
	ResourcesRemainingPct float64
	ParScore              int
	// Margin is runs scored so far minus the par score — positive means
	// the chasing side is ahead of the rate.
	Margin int
}

// Calc is a pure function over the resource table and the interruption
// parameters. It never errors for expected domain conditions — only
// logically impossible inputs are rejected.
func Calc(t *Table, in Input) (Result, error) {
	if t == nil {
		return Result{}, fmt.Errorf("nil resource table: %w", ErrBadInput)
	}
	if in.TotalOvers < 1 || in.TotalOvers > maxOvers {
		return Result{}, fmt.Errorf("total overs %d: %w", in.TotalOvers, ErrBadInput)
	}
	if in.OversAvailable < 0 || in.OversAvailable > in.TotalOvers {
		return Result{}, fmt.Errorf("overs available %d of %d: %w", in.OversAvailable, in.TotalOvers, ErrBadInput)
	}
	if in.WicketsLost < 0 || in.WicketsLost > 10 {
		return Result{}, fmt.Errorf("wickets lost %d: %w", in.WicketsLost, ErrBadInput)
	}
	if in.Team1Runs < 0 || in.RunsSoFar < 0 {
		return Result{}, fmt.Errorf("negative runs: %w", ErrBadInput)
	}

	g50 := in.G50
	if g50 <= 0 {
		g50 = DefaultG50
	}

	// Both sides start from the full table entry for the scheduled overs;
	// what the chase never got to use is the entry at the interruption.
	full := t.Resource(in.TotalOvers, 0)
	r1 := in.Team1Resources
	if r1 <= 0 {
		r1 = full
	}
	remaining := t.Resource(in.TotalOvers-in.OversAvailable, in.WicketsLost)
	r2 := full - remaining
	used := r2

	var target, parF float64
	if r2 > r1 {
		// The chase had more resource than the side that set the score:
		// scale the surplus by the average full-innings score.
		target = float64(in.Team1Runs) + float64(g50)*(r2-r1)/100
		parF = float64(in.Team1Runs) + float64(g50)*(used-r1)/100
	} else {
		// Ratio before product: an uninterrupted chase scales by exactly 1.
		target = float64(in.Team1Runs) * (r2 / r1)
		parF = float64(in.Team1Runs) * (used / r1)
	}

	par := int(math.Floor(parF))

	return Result{
		RevisedTarget:         int(math.Ceil(target)),
		ResourcesUsedPct:      round2(used),
		ResourcesRemainingPct: round2(remaining),
		ParScore:              par,
		Margin:                in.RunsSoFar - par,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
