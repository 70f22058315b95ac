package match

import (
	"strings"
	"testing"

	"github.com/stumpline/cricket-live/internal/core/innings"
	"github.com/stumpline/cricket-live/internal/events"
)

func liveMatch(t *testing.T) *Context {
	t.Helper()
	mc := NewContext("m1", "India", "Australia", 50)
	t.Cleanup(mc.Close)
	if err := mc.StartInnings(1, "India", "rohit", "gill", "starc", 0); err != nil {
		t.Fatalf("StartInnings: %v", err)
	}
	return mc
}

func nextBall(t *testing.T, mc *Context, runs int, extra events.Extra) events.BallEvent {
	t.Helper()
	snap := mc.Snapshot()
	st := snap.Innings[snap.CurrentInnings]
	e := events.NewBallEvent(mc.ID, st.Innings, st.NextOver(), st.NextBall())
	e.Runs = runs
	e.Extra = extra
	e.Striker = st.Striker
	e.NonStriker = st.NonStriker
	e.Bowler = st.Bowler
	return e
}

func TestIngestAssignsContiguousSequence(t *testing.T) {
	mc := liveMatch(t)

	for want := int64(1); want <= 3; want++ {
		ack, committed := mc.Ingest(nextBall(t, mc, 1, events.ExtraNone))
		if !ack.Accepted {
			t.Fatalf("ball %d not accepted: %+v", want, ack)
		}
		if ack.Seq != want || committed.Seq != want {
			t.Fatalf("seq = %d/%d, want %d", ack.Seq, committed.Seq, want)
		}
	}
}

func TestIngestDuplicateReturnsOriginalSeq(t *testing.T) {
	mc := liveMatch(t)

	e := nextBall(t, mc, 4, events.ExtraNone)
	first, _ := mc.Ingest(e)
	if !first.Accepted {
		t.Fatalf("first submission: %+v", first)
	}

	before := mc.Snapshot()
	again, _ := mc.Ingest(e)
	after := mc.Snapshot()

	if !again.Duplicate || again.Seq != first.Seq {
		t.Errorf("resubmission ack = %+v, want duplicate with seq %d", again, first.Seq)
	}
	st1, st2 := before.Innings[1], after.Innings[1]
	if st2.Runs != st1.Runs || st2.Wickets != st1.Wickets || after.LastSeq != before.LastSeq {
		t.Errorf("duplicate changed state: %d/%d runs, seq %d/%d",
			st1.Runs, st2.Runs, before.LastSeq, after.LastSeq)
	}
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	mc := liveMatch(t)

	e := nextBall(t, mc, 0, events.ExtraNone)
	e.Over, e.Ball = 7, 3
	ack, _ := mc.Ingest(e)
	if !ack.Rejected || ack.Reason == "" {
		t.Fatalf("out-of-order event ack = %+v, want rejection with reason", ack)
	}
	if !strings.Contains(ack.Reason, "out of order") {
		t.Errorf("reason = %q, want ordering violation", ack.Reason)
	}

	wrongInnings := nextBall(t, mc, 0, events.ExtraNone)
	wrongInnings.Innings = 2
	if ack, _ := mc.Ingest(wrongInnings); !ack.Rejected {
		t.Errorf("wrong-innings event ack = %+v, want rejection", ack)
	}

	// Rejected events must not burn sequence numbers.
	ok, _ := mc.Ingest(nextBall(t, mc, 0, events.ExtraNone))
	if ok.Seq != 1 {
		t.Errorf("first accepted seq = %d, want 1", ok.Seq)
	}
}

func TestStartInningsGuards(t *testing.T) {
	mc := liveMatch(t)

	if err := mc.StartInnings(1, "India", "a", "b", "c", 0); err == nil {
		t.Error("restarting innings 1 allowed")
	}
	if err := mc.StartInnings(2, "Australia", "warner", "head", "bumrah", 0); err == nil {
		t.Error("second innings opened while first in progress")
	}
}

func TestSecondInningsDefaultsTargetToFirstTotal(t *testing.T) {
	mc := NewContext("m1", "India", "Australia", 1)
	t.Cleanup(mc.Close)
	if err := mc.StartInnings(1, "India", "rohit", "gill", "starc", 0); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		ack, _ := mc.Ingest(nextBall(t, mc, 2, events.ExtraNone))
		if !ack.Accepted {
			t.Fatalf("ball %d: %+v", i, ack)
		}
	}
	snap := mc.Snapshot()
	if snap.Innings[1].Phase != innings.Completed {
		t.Fatalf("first innings phase = %s", snap.Innings[1].Phase)
	}

	if err := mc.StartInnings(2, "Australia", "warner", "head", "bumrah", 0); err != nil {
		t.Fatal(err)
	}
	snap = mc.Snapshot()
	if got := snap.Innings[2].Target; got != 12 {
		t.Errorf("chase target = %d, want 12", got)
	}
}

func TestSeedRestoresDedupAndSequence(t *testing.T) {
	mc := liveMatch(t)
	mc.Seed(map[string]int64{"old-event": 41}, 41)

	dup, _ := mc.Ingest(events.BallEvent{ID: "old-event", MatchID: "m1", Innings: 1})
	if !dup.Duplicate || dup.Seq != 41 {
		t.Fatalf("seeded duplicate ack = %+v, want seq 41", dup)
	}

	ack, _ := mc.Ingest(nextBall(t, mc, 0, events.ExtraNone))
	if !ack.Accepted || ack.Seq != 42 {
		t.Fatalf("post-seed ack = %+v, want seq 42", ack)
	}
}

func TestRestoreRebuildsInnings(t *testing.T) {
	mc := NewContext("m1", "India", "Australia", 50)
	t.Cleanup(mc.Close)

	openings := []InningsOpening{
		{Innings: 1, BattingTeam: "India", Striker: "rohit", NonStriker: "gill", Bowler: "starc"},
	}
	evts := []events.BallEvent{
		{ID: "b1", MatchID: "m1", Innings: 1, Over: 0, Ball: 1, Runs: 4,
			Striker: "rohit", NonStriker: "gill", Bowler: "starc", Seq: 1},
		{ID: "b2", MatchID: "m1", Innings: 1, Over: 0, Ball: 2, Runs: 1,
			Striker: "rohit", NonStriker: "gill", Bowler: "starc", Seq: 2},
	}
	if err := mc.Restore(openings, evts); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	snap := mc.Snapshot()
	st := snap.Innings[1]
	if st.Runs != 5 || st.LegalBalls != 2 || snap.LastSeq != 2 {
		t.Fatalf("restored scorebook: %d runs off %d balls at seq %d, want 5/2/2",
			st.Runs, st.LegalBalls, snap.LastSeq)
	}
	if st.Striker != "gill" {
		t.Errorf("restored striker = %s, want gill after the single", st.Striker)
	}
	if snap.Status != events.MatchLive || snap.CurrentInnings != 1 {
		t.Errorf("status=%s innings=%d, want live innings 1", snap.Status, snap.CurrentInnings)
	}

	// The dedup set survives the rebuild.
	dup, _ := mc.Ingest(evts[0])
	if !dup.Duplicate || dup.Seq != 1 {
		t.Errorf("replayed event ack = %+v, want duplicate at seq 1", dup)
	}

	// New play picks up exactly where the log left off.
	ack, _ := mc.Ingest(nextBall(t, mc, 0, events.ExtraNone))
	if !ack.Accepted || ack.Seq != 3 {
		t.Errorf("post-restore ack = %+v, want accepted at seq 3", ack)
	}
}

func TestStartInningsReconcilesResentOpening(t *testing.T) {
	mc := liveMatch(t)

	// A scorer re-registering after a restart re-sends the same opening.
	if err := mc.StartInnings(1, "India", "rohit", "gill", "starc", 0); err != nil {
		t.Fatalf("identical opening rejected: %v", err)
	}
	if err := mc.StartInnings(1, "India", "rohit", "gill", "bumrah", 0); err == nil {
		t.Error("conflicting opening accepted")
	}
}

func TestTiedChaseLeavesMatchOpenForSuperOver(t *testing.T) {
	mc := NewContext("m1", "India", "Australia", 1)
	t.Cleanup(mc.Close)
	if err := mc.StartInnings(1, "India", "rohit", "gill", "starc", 0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if ack, _ := mc.Ingest(nextBall(t, mc, 1, events.ExtraNone)); !ack.Accepted {
			t.Fatalf("innings 1 ball %d: %+v", i, ack)
		}
	}

	if err := mc.StartInnings(2, "Australia", "warner", "head", "bumrah", 0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if ack, _ := mc.Ingest(nextBall(t, mc, 1, events.ExtraNone)); !ack.Accepted {
			t.Fatalf("innings 2 ball %d: %+v", i, ack)
		}
	}

	snap := mc.Snapshot()
	if snap.Innings[2].Phase != innings.Completed {
		t.Fatalf("chase phase = %s, want completed", snap.Innings[2].Phase)
	}
	if snap.Status != events.MatchLive {
		t.Fatalf("tied match status = %s, want live for the super over", snap.Status)
	}

	if err := mc.StartInnings(3, "India", "kohli", "pant", "cummins", 0); err == nil {
		t.Error("super over opened without a score to beat")
	}
	if err := mc.StartInnings(3, "India", "kohli", "pant", "cummins", 1); err != nil {
		t.Fatalf("super over: %v", err)
	}
	if ack, _ := mc.Ingest(nextBall(t, mc, 2, events.ExtraNone)); !ack.Accepted {
		t.Fatalf("super over ball: %+v", ack)
	}
	if snap := mc.Snapshot(); snap.Status != events.MatchCompleted {
		t.Errorf("status after super over win = %s, want completed", snap.Status)
	}
}

func TestCanonicalName(t *testing.T) {
	if got := CanonicalName("  Royal   Challengers \t Bengaluru "); got != "Royal Challengers Bengaluru" {
		t.Errorf("CanonicalName = %q", got)
	}
}
