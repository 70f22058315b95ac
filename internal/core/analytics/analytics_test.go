package analytics

import (
	"testing"

	"github.com/stumpline/cricket-live/internal/events"
)

func delivery(over, ball, runs int, extra events.Extra) events.BallEvent {
	return events.BallEvent{
		ID: "e", MatchID: "m1", Innings: 1,
		Over: over, Ball: ball, Runs: runs, Extra: extra,
	}
}

func TestRunRateUndefinedBeforeFirstLegalBall(t *testing.T) {
	if _, ok := RunRate(nil); ok {
		t.Error("run rate defined for empty innings")
	}

	// Two wides and nothing else: still no legal ball bowled.
	evts := []events.BallEvent{
		delivery(0, 1, 0, events.ExtraWide),
		delivery(0, 1, 1, events.ExtraWide),
	}
	if _, ok := RunRate(evts); ok {
		t.Error("run rate defined after only wides")
	}
}

func TestRunRate(t *testing.T) {
	evts := []events.BallEvent{
		delivery(0, 1, 4, events.ExtraNone),
		delivery(0, 2, 0, events.ExtraWide), // +1, no ball counted
		delivery(0, 2, 1, events.ExtraNone),
	}
	rate, ok := RunRate(evts)
	if !ok {
		t.Fatal("run rate undefined")
	}
	// 6 runs off 2 legal balls = 18.0 per over
	if rate != 18.0 {
		t.Errorf("rate = %v, want 18.0", rate)
	}
}

func TestRequiredRate(t *testing.T) {
	evts := []events.BallEvent{delivery(0, 1, 4, events.ExtraNone)}

	if _, ok := RequiredRate(evts, 0, 50); ok {
		t.Error("required rate defined without a target")
	}

	rate, ok := RequiredRate(evts, 154, 50)
	if !ok {
		t.Fatal("required rate undefined")
	}
	want := float64(150) / float64(299) * 6
	if diff := rate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("rate = %v, want %v", rate, want)
	}

	// Innings over: nothing left to chase with.
	full := make([]events.BallEvent, 0, 300)
	for i := 0; i < 300; i++ {
		full = append(full, delivery(i/6, i%6+1, 0, events.ExtraNone))
	}
	if _, ok := RequiredRate(full, 154, 50); ok {
		t.Error("required rate defined with no balls remaining")
	}
}

func TestPartnershipResetsOnWicket(t *testing.T) {
	evts := []events.BallEvent{
		delivery(0, 1, 4, events.ExtraNone),
		delivery(0, 2, 2, events.ExtraBye),
		delivery(0, 3, 1, events.ExtraWide), // wides excluded from stand
	}
	p := CurrentPartnership(evts)
	if p.Runs != 6 || p.Balls != 2 {
		t.Fatalf("opening stand = %+v, want 6 off 2", p)
	}

	w := delivery(0, 3, 0, events.ExtraNone)
	w.Wicket = true
	evts = append(evts, w)
	if p := CurrentPartnership(evts); p.Runs != 0 || p.Balls != 0 {
		t.Fatalf("stand after wicket = %+v, want fresh", p)
	}

	evts = append(evts, delivery(0, 4, 3, events.ExtraNone))
	if p := CurrentPartnership(evts); p.Runs != 3 || p.Balls != 1 {
		t.Fatalf("new stand = %+v, want 3 off 1", p)
	}
}

func TestManhattanExcludesByes(t *testing.T) {
	evts := []events.BallEvent{
		delivery(0, 1, 4, events.ExtraNone),
		delivery(0, 2, 2, events.ExtraBye),    // no over-run credit
		delivery(0, 3, 1, events.ExtraNoBall), // 2 runs credited
		delivery(0, 3, 0, events.ExtraNone),
		delivery(0, 4, 0, events.ExtraNone),
		delivery(0, 5, 0, events.ExtraNone),
		delivery(0, 6, 0, events.ExtraNone),
		delivery(1, 1, 6, events.ExtraNone),
	}
	got := Manhattan(evts)
	want := []int{6, 6}
	if len(got) != len(want) {
		t.Fatalf("manhattan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("over %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWormAlignsOnLegalBalls(t *testing.T) {
	evts := []events.BallEvent{
		delivery(0, 1, 4, events.ExtraNone),
		delivery(0, 2, 0, events.ExtraWide), // folded into next point
		delivery(0, 2, 1, events.ExtraNone),
		delivery(0, 3, 0, events.ExtraNone),
	}
	got := Worm(evts)
	want := []int{4, 6, 6}
	if len(got) != len(want) {
		t.Fatalf("worm = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWagonWheelOnlyCountsBatRuns(t *testing.T) {
	cover := delivery(0, 1, 4, events.ExtraNone)
	cover.Shot = "cover"
	square := delivery(0, 2, 2, events.ExtraNone)
	square.Shot = "square_leg"
	coverAgain := delivery(0, 3, 1, events.ExtraNone)
	coverAgain.Shot = "cover"
	bye := delivery(0, 4, 4, events.ExtraBye)
	bye.Shot = "fine_leg" // extra: excluded
	dot := delivery(0, 5, 0, events.ExtraNone)
	dot.Shot = "mid_on" // no runs: excluded

	wheel := WagonWheel([]events.BallEvent{cover, square, coverAgain, bye, dot})
	if wheel["cover"] != 5 || wheel["square_leg"] != 2 {
		t.Errorf("wheel = %v, want cover=5 square_leg=2", wheel)
	}
	if _, ok := wheel["fine_leg"]; ok {
		t.Error("byes counted in wagon wheel")
	}
	if _, ok := wheel["mid_on"]; ok {
		t.Error("dot ball counted in wagon wheel")
	}
}
