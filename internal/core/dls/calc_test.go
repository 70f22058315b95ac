package dls

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResourceLookup(t *testing.T) {
	table := Standard()

	tests := []struct {
		name    string
		overs   int
		wickets int
		want    float64
	}{
		{"full innings intact", 50, 0, 100.0},
		{"20 overs 4 down", 20, 4, 44.6},
		{"10 overs 5 down", 10, 5, 26.1},
		{"last over 8 down", 1, 8, 3.2},
		{"no overs left", 0, 3, 0},
		{"all out", 25, 10, 0},
		{"clamped above table", 60, 0, 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Resource(tt.overs, tt.wickets); got != tt.want {
				t.Errorf("Resource(%d, %d) = %v, want %v", tt.overs, tt.wickets, got, tt.want)
			}
		})
	}
}

// The published worked example: team 1 makes 250 in 50 overs; rain ends the
// chase at 30 overs with 4 wickets down. 44.6% of the chase's resource was
// never used, so the target revises to ceil(250 × 55.4/100) = 139, par 138.
func TestCalcWorkedExample(t *testing.T) {
	res, err := Calc(Standard(), Input{
		Team1Runs:      250,
		TotalOvers:     50,
		OversAvailable: 30,
		WicketsLost:    4,
		RunsSoFar:      140,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}

	if res.RevisedTarget != 139 {
		t.Errorf("revised target = %d, want 139", res.RevisedTarget)
	}
	if res.ResourcesUsedPct != 55.4 {
		t.Errorf("resources used = %v, want 55.40", res.ResourcesUsedPct)
	}
	if res.ResourcesRemainingPct != 44.6 {
		t.Errorf("resources remaining = %v, want 44.60", res.ResourcesRemainingPct)
	}
	if res.ParScore != 138 {
		t.Errorf("par = %d, want 138", res.ParScore)
	}
	if res.Margin != 2 {
		t.Errorf("margin = %d, want 2 (140 vs par 138)", res.Margin)
	}
}

func TestCalcUninterruptedChaseIsUnchanged(t *testing.T) {
	res, err := Calc(Standard(), Input{
		Team1Runs:      250,
		TotalOvers:     50,
		OversAvailable: 50,
		WicketsLost:    6,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	// Full 50 overs received: all 100% of resource available, no revision.
	if res.RevisedTarget != 250 {
		t.Errorf("revised target = %d, want 250", res.RevisedTarget)
	}
	if res.ResourcesUsedPct != 100.0 {
		t.Errorf("resources used = %v, want 100.00", res.ResourcesUsedPct)
	}
}

func TestCalcG50WhenChaseHasMoreResource(t *testing.T) {
	// Team 1's innings was itself cut short, leaving them only 70% of
	// resource; the chase then runs untouched with 100%.
	res, err := Calc(Standard(), Input{
		Team1Runs:      180,
		TotalOvers:     50,
		OversAvailable: 50,
		WicketsLost:    3,
		Team1Resources: 70,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	// 180 + 245 × (100−70)/100 = 253.5 → 254
	if res.RevisedTarget != 254 {
		t.Errorf("revised target = %d, want 254", res.RevisedTarget)
	}
}

func TestCalcShortMatchUsesScheduledResources(t *testing.T) {
	// A 20-over chase starts with 56.6% resource, not 100%. Receiving all
	// of it leaves the target alone.
	res, err := Calc(Standard(), Input{
		Team1Runs:      160,
		TotalOvers:     20,
		OversAvailable: 20,
		WicketsLost:    5,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	if res.RevisedTarget != 160 {
		t.Errorf("uninterrupted T20 revised target = %d, want 160", res.RevisedTarget)
	}

	// Rain at 15 of 20 overs, 4 down: 16.1% of the chase's allocation goes
	// unused, so the target scales by 40.5/56.6 → ceil(114.49) = 115.
	res, err = Calc(Standard(), Input{
		Team1Runs:      160,
		TotalOvers:     20,
		OversAvailable: 15,
		WicketsLost:    4,
		RunsSoFar:      110,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	if res.RevisedTarget != 115 {
		t.Errorf("interrupted T20 revised target = %d, want 115", res.RevisedTarget)
	}
	if res.ResourcesUsedPct != 40.5 {
		t.Errorf("resources used = %v, want 40.50", res.ResourcesUsedPct)
	}
	if res.ResourcesRemainingPct != 16.1 {
		t.Errorf("resources remaining = %v, want 16.10", res.ResourcesRemainingPct)
	}
	if res.ParScore != 114 {
		t.Errorf("par = %d, want 114", res.ParScore)
	}
}

func TestCalcRejectsImpossibleInput(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"zero overs", Input{Team1Runs: 250, TotalOvers: 0}},
		{"overs beyond schedule", Input{Team1Runs: 250, TotalOvers: 50, OversAvailable: 51}},
		{"eleven wickets", Input{Team1Runs: 250, TotalOvers: 50, OversAvailable: 20, WicketsLost: 11}},
		{"negative runs", Input{Team1Runs: -1, TotalOvers: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Calc(Standard(), tt.in); !errors.Is(err, ErrBadInput) {
				t.Errorf("got %v, want ErrBadInput", err)
			}
		})
	}
}

func TestCalcPercentagesRounded(t *testing.T) {
	res, err := Calc(Standard(), Input{
		Team1Runs:      200,
		TotalOvers:     50,
		OversAvailable: 17,
		WicketsLost:    2,
	})
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	// 33 overs remain at 2 down: 70.7% unused, so 29.3% used — the
	// subtraction must come back cleanly rounded, not 29.299999....
	if res.ResourcesRemainingPct != 70.7 {
		t.Errorf("resources remaining = %v, want 70.70", res.ResourcesRemainingPct)
	}
	if res.ResourcesUsedPct != 29.3 {
		t.Errorf("resources used = %v, want 29.30", res.ResourcesUsedPct)
	}
}

func TestLoadTableOverridesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	body := "overs_remaining:\n  20: [57.0, 55.0, 52.5, 49.2, 44.7, 38.7, 30.9, 21.3, 11.9, 4.7]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if got := table.Resource(20, 0); got != 57.0 {
		t.Errorf("overridden Resource(20, 0) = %v, want 57.0", got)
	}
	// Untouched rows keep the standard values.
	if got := table.Resource(50, 0); got != 100.0 {
		t.Errorf("Resource(50, 0) = %v, want 100.0", got)
	}
}

func TestLoadTableRejectsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	body := "overs_remaining:\n  20: [57.0, 55.0]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatal("short row accepted")
	}
}
