package dls

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table maps (full overs remaining, wickets already lost) to the resource
// percentage a batting side has left. Values are domain constants from the
// published DLS Standard Edition reference table and must not be
// approximated — the revised-target arithmetic is pinned against worked
// examples that assume these exact entries.
type Table struct {
	// rows[o][w] is the entry for o+1 overs remaining with w wickets lost.
	rows [maxOvers][wicketCols]float64
}

const (
	maxOvers   = 50
	wicketCols = 10

	// DefaultG50 is the average score of a full uninterrupted 50-over
	// innings, per current ICC playing conditions.
	DefaultG50 = 245
)

// Standard returns the built-in Standard Edition table.
func Standard() *Table {
	return &Table{rows: standardRows}
}

// Resource returns the percentage of scoring resource remaining with the
// given full overs left and wickets lost. Out-of-range positions clamp to
// the table edges; no overs left or all ten wickets down is 0%.
func (t *Table) Resource(oversRemaining, wicketsLost int) float64 {
	if oversRemaining <= 0 || wicketsLost >= 10 {
		return 0
	}
	if oversRemaining > maxOvers {
		oversRemaining = maxOvers
	}
	if wicketsLost < 0 {
		wicketsLost = 0
	}
	return t.rows[oversRemaining-1][wicketsLost]
}

// tableFile is the yaml shape for substituting an updated table edition.
type tableFile struct {
	Rows map[int][]float64 `yaml:"overs_remaining"`
}

// LoadTable reads a resource table from a yaml file keyed by overs
// remaining, each row holding ten wicket columns. Rows absent from the
// file keep the built-in Standard Edition values.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource table: %w", err)
	}

	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse resource table: %w", err)
	}

	t := Standard()
	for overs, row := range tf.Rows {
		if overs < 1 || overs > maxOvers {
			return nil, fmt.Errorf("resource table row %d: overs out of range", overs)
		}
		if len(row) != wicketCols {
			return nil, fmt.Errorf("resource table row %d: %d wicket columns, want %d", overs, len(row), wicketCols)
		}
		copy(t.rows[overs-1][:], row)
	}
	return t, nil
}

// standardRows is the DLS Standard Edition resource-percentage-remaining
// table for a 50-over innings: one row per full over remaining (1..50),
// columns for 0..9 wickets lost.
var standardRows = [maxOvers][wicketCols]float64{
	{3.6, 3.6, 3.6, 3.6, 3.6, 3.5, 3.5, 3.4, 3.2, 2.5},
	{7.1, 7.0, 6.9, 6.8, 6.7, 6.5, 6.2, 5.7, 4.8, 3.0},
	{10.5, 10.3, 10.2, 10.1, 9.9, 9.5, 8.9, 8.0, 6.3, 3.6},
	{13.9, 13.7, 13.5, 13.3, 13.0, 12.4, 11.6, 10.2, 7.9, 4.1},
	{17.2, 17.0, 16.8, 16.5, 16.1, 15.4, 14.3, 12.5, 9.4, 4.6},
	{20.3, 19.9, 19.6, 19.2, 18.5, 17.5, 16.0, 13.6, 9.8, 4.6},
	{23.4, 22.8, 22.4, 21.8, 21.0, 19.7, 17.7, 14.7, 10.2, 4.7},
	{26.4, 25.8, 25.2, 24.5, 23.4, 21.8, 19.4, 15.7, 10.6, 4.7},
	{29.3, 28.7, 28.0, 27.1, 25.9, 24.0, 21.1, 16.8, 11.0, 4.7},
	{32.1, 31.6, 30.8, 29.8, 28.3, 26.1, 22.8, 17.9, 11.4, 4.7},
	{34.9, 34.1, 33.2, 31.9, 30.2, 27.6, 23.8, 18.3, 11.4, 4.7},
	{37.6, 36.6, 35.5, 34.1, 32.0, 29.1, 24.8, 18.7, 11.4, 4.7},
	{40.2, 39.1, 37.9, 36.2, 33.9, 30.5, 25.7, 19.2, 11.4, 4.7},
	{42.7, 41.6, 40.2, 38.4, 35.7, 32.0, 26.7, 19.6, 11.5, 4.7},
	{45.2, 44.1, 42.6, 40.5, 37.6, 33.5, 27.7, 20.0, 11.5, 4.7},
	{47.6, 46.2, 44.6, 42.2, 39.0, 34.5, 28.3, 20.2, 11.6, 4.7},
	{49.9, 48.4, 46.5, 43.9, 40.4, 35.5, 28.9, 20.5, 11.7, 4.7},
	{52.2, 50.5, 48.5, 45.7, 41.8, 36.6, 29.6, 20.7, 11.7, 4.7},
	{54.4, 52.7, 50.4, 47.4, 43.2, 37.6, 30.2, 21.0, 11.8, 4.7},
	{56.6, 54.8, 52.4, 49.1, 44.6, 38.6, 30.8, 21.2, 11.9, 4.7},
	{58.7, 56.6, 54.0, 50.4, 45.6, 39.3, 31.2, 21.3, 11.9, 4.7},
	{60.7, 58.4, 55.6, 51.7, 46.7, 40.0, 31.5, 21.4, 11.9, 4.7},
	{62.7, 60.3, 57.3, 53.1, 47.7, 40.8, 31.9, 21.4, 11.9, 4.7},
	{64.6, 62.1, 58.9, 54.4, 48.8, 41.5, 32.2, 21.5, 11.9, 4.7},
	{66.5, 63.9, 60.5, 55.7, 49.8, 42.2, 32.6, 21.6, 11.9, 4.7},
	{68.3, 65.5, 61.9, 56.9, 50.7, 42.7, 32.8, 21.6, 11.9, 4.7},
	{70.1, 67.1, 63.2, 58.1, 51.5, 43.2, 33.0, 21.7, 11.9, 4.7},
	{71.8, 68.6, 64.6, 59.2, 52.4, 43.7, 33.2, 21.7, 11.9, 4.7},
	{73.5, 70.2, 65.9, 60.4, 53.2, 44.2, 33.4, 21.8, 11.9, 4.7},
	{75.1, 71.8, 67.3, 61.6, 54.1, 44.7, 33.6, 21.8, 11.9, 4.7},
	{76.7, 73.1, 68.4, 62.5, 54.7, 45.0, 33.7, 21.8, 11.9, 4.7},
	{78.3, 74.4, 69.5, 63.4, 55.3, 45.4, 33.8, 21.8, 11.9, 4.7},
	{79.8, 75.7, 70.7, 64.2, 55.9, 45.7, 34.0, 21.9, 11.9, 4.7},
	{81.3, 77.0, 71.8, 65.1, 56.5, 46.1, 34.1, 21.9, 11.9, 4.7},
	{82.7, 78.3, 72.9, 66.0, 57.1, 46.4, 34.2, 21.9, 11.9, 4.7},
	{84.1, 79.5, 73.9, 66.7, 57.6, 46.6, 34.3, 21.9, 11.9, 4.7},
	{85.4, 80.7, 74.9, 67.4, 58.1, 46.9, 34.4, 21.9, 11.9, 4.7},
	{86.7, 81.8, 75.8, 68.2, 58.5, 47.1, 34.4, 22.0, 11.9, 4.7},
	{88.0, 83.0, 76.8, 68.9, 59.0, 47.4, 34.5, 22.0, 11.9, 4.7},
	{89.3, 84.2, 77.8, 69.6, 59.5, 47.6, 34.6, 22.0, 11.9, 4.7},
	{90.5, 85.2, 78.6, 70.2, 59.8, 47.8, 34.6, 22.0, 11.9, 4.7},
	{91.7, 86.2, 79.4, 70.8, 60.1, 47.9, 34.7, 22.0, 11.9, 4.7},
	{92.8, 87.1, 80.2, 71.3, 60.5, 48.1, 34.7, 22.0, 11.9, 4.7},
	{93.9, 88.1, 81.0, 71.9, 60.8, 48.2, 34.8, 22.0, 11.9, 4.7},
	{95.0, 89.1, 81.8, 72.5, 61.1, 48.4, 34.8, 22.0, 11.9, 4.7},
	{96.1, 90.0, 82.5, 73.0, 61.4, 48.5, 34.8, 22.0, 11.9, 4.7},
	{97.1, 90.8, 83.1, 73.5, 61.7, 48.6, 34.8, 22.0, 11.9, 4.7},
	{98.1, 91.7, 83.8, 73.9, 62.1, 48.8, 34.9, 22.0, 11.9, 4.7},
	{99.1, 92.5, 84.4, 74.4, 62.4, 48.9, 34.9, 22.0, 11.9, 4.7},
	{100.0, 93.4, 85.1, 74.9, 62.7, 49.0, 34.9, 22.0, 11.9, 4.7},
}
