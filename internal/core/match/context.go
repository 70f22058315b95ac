package match

import (
	"fmt"
	"sort"
	"time"

	"github.com/stumpline/cricket-live/internal/core/innings"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

// Context is the single source of truth for one match on the server.
//
// All state mutations are serialized through an inbox channel — one
// goroutine drains it, so sequence-number assignment and reducer
// application never race, and no mutexes are needed on any field.
//
// Any goroutine that wants to touch match state sends a closure via Do()
// or Send(). The closure runs on the match's own goroutine.
type Context struct {
	ID         string
	HomeTeam   string
	AwayTeam   string
	TotalOvers int

	Status events.MatchStatus

	// CurrentInnings is 0 before the first innings starts.
	CurrentInnings int
	Innings        map[int]innings.State

	// openings records how each innings was opened, so a re-sent start
	// request can be reconciled and a restarted server can rebuild the
	// scorebook by replaying the event log over the same openings.
	openings map[int]InningsOpening

	// seq is the per-match commit counter. Innings are strictly
	// sequential, so per-innings contiguity follows from it.
	seq int64

	// seen maps client event IDs to their assigned sequence numbers —
	// the deduplication set behind exactly-once application.
	seen map[string]int64

	inbox chan func()
	stop  chan struct{}
}

func NewContext(id, homeTeam, awayTeam string, totalOvers int) *Context {
	mc := &Context{
		ID:         id,
		HomeTeam:   homeTeam,
		AwayTeam:   awayTeam,
		TotalOvers: totalOvers,
		Status:     events.MatchUpcoming,
		Innings:    make(map[int]innings.State),
		openings:   make(map[int]InningsOpening),
		seen:       make(map[string]int64),
		inbox:      make(chan func(), 256),
		stop:       make(chan struct{}),
	}
	go mc.run()
	return mc
}

// run is the match's event loop. All closures sent via Do/Send execute
// here, one at a time, on this single goroutine.
func (mc *Context) run() {
	defer close(mc.stop)
	for fn := range mc.inbox {
		fn()
	}
}

// Do enqueues a closure and blocks until it has run.
func (mc *Context) Do(fn func()) {
	done := make(chan struct{})
	mc.inbox <- func() {
		fn()
		close(done)
	}
	<-done
}

// Send enqueues a closure without waiting. Non-blocking: drops the closure
// and logs a warning if the inbox is full, so a stuck match cannot block
// upstream processing.
func (mc *Context) Send(fn func()) {
	select {
	case mc.inbox <- fn:
	default:
		telemetry.Metrics.InboxOverflows.Inc()
		telemetry.Warnf("match %s: inbox full (cap=%d), dropping work", mc.ID, cap(mc.inbox))
	}
}

// Close shuts down the match's goroutine and waits for it to drain.
func (mc *Context) Close() {
	close(mc.inbox)
	<-mc.stop
}

// Seed restores the dedup set and commit counter from the persisted event
// log after a restart.
func (mc *Context) Seed(seen map[string]int64, maxSeq int64) {
	mc.Do(func() {
		for id, seq := range seen {
			mc.seen[id] = seq
		}
		if maxSeq > mc.seq {
			mc.seq = maxSeq
		}
	})
}

// InningsOpening is the durable record of an innings start: enough to
// rebuild the opening state and to reconcile a re-sent start request.
type InningsOpening struct {
	Innings     int
	BattingTeam string
	Striker     string
	NonStriker  string
	Bowler      string
	Target      int
}

// StartInnings opens innings number num. For the second innings a zero
// target defaults to the first innings' total, making the chase complete
// the moment that score is exceeded. A request that exactly matches an
// already-open innings is a no-op, so a scorer re-registering after a
// restart converges instead of erroring.
func (mc *Context) StartInnings(num int, battingTeam, striker, nonStriker, bowler string, target int) error {
	var err error
	mc.Do(func() {
		req := InningsOpening{
			Innings: num, BattingTeam: battingTeam,
			Striker: striker, NonStriker: nonStriker,
			Bowler: bowler, Target: target,
		}
		if prev, exists := mc.openings[num]; exists {
			if prev == req {
				return
			}
			err = fmt.Errorf("innings %d already started: %w", num, innings.ErrValidation)
			return
		}
		if mc.Status == events.MatchCompleted {
			err = fmt.Errorf("match %s already decided: %w", mc.ID, innings.ErrValidation)
			return
		}
		if cur, ok := mc.Innings[mc.CurrentInnings]; ok && cur.Phase != innings.Completed {
			err = fmt.Errorf("innings %d still in progress: %w", mc.CurrentInnings, innings.ErrValidation)
			return
		}
		if num == 3 && target <= 0 {
			err = fmt.Errorf("super over needs the score to beat: %w", innings.ErrValidation)
			return
		}

		var st innings.State
		st, err = mc.openState(req)
		if err != nil {
			return
		}
		mc.Innings[num] = st
		mc.openings[num] = req
		mc.CurrentInnings = num
		mc.Status = events.MatchLive
	})
	return err
}

// openState builds the opening innings state for a recorded opening,
// resolving the defaults that depend on earlier innings.
func (mc *Context) openState(op InningsOpening) (innings.State, error) {
	totalOvers := mc.TotalOvers
	if op.Innings == 3 {
		// Designated super over.
		totalOvers = 1
	}
	target := op.Target
	if op.Innings == 2 && target == 0 {
		if first, ok := mc.Innings[1]; ok {
			target = first.Runs
		}
	}
	return innings.NewState(op.Innings, op.BattingTeam, totalOvers, target, op.Striker, op.NonStriker, op.Bowler)
}

// Restore rebuilds the whole scorebook from the durable record: innings
// openings in order, each folded over its slice of the committed event
// log. The dedup set and commit counter come from the same events, so the
// context resumes exactly where the previous process stopped.
func (mc *Context) Restore(openings []InningsOpening, evts []events.BallEvent) error {
	var err error
	mc.Do(func() {
		sorted := make([]InningsOpening, len(openings))
		copy(sorted, openings)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Innings < sorted[j].Innings })

		for _, op := range sorted {
			var st innings.State
			if st, err = mc.openState(op); err != nil {
				err = fmt.Errorf("restore innings %d: %w", op.Innings, err)
				return
			}
			var slice []events.BallEvent
			for _, e := range evts {
				if e.Innings == op.Innings {
					slice = append(slice, e)
				}
			}
			if st, err = innings.Replay(st, slice); err != nil {
				err = fmt.Errorf("restore innings %d: %w", op.Innings, err)
				return
			}
			mc.Innings[op.Innings] = st
			mc.openings[op.Innings] = op
			mc.CurrentInnings = op.Innings
			mc.Status = events.MatchLive
			mc.noteCompletion(op.Innings, st)
		}

		for _, e := range evts {
			mc.seen[e.ID] = e.Seq
			if e.Seq > mc.seq {
				mc.seq = e.Seq
			}
		}
	})
	return err
}

// Ingest runs the idempotent ingestion path for one ball event: dedup
// lookup, sequence assignment, reducer application. It returns the ack to
// send back and, on the accepted path, the event stamped with its
// sequence number ready for the log and the broadcast channel.
func (mc *Context) Ingest(e events.BallEvent) (events.Ack, events.BallEvent) {
	ack, committed, _ := mc.IngestCommit(e, nil)
	return ack, committed
}

// IngestCommit is Ingest with a durability hook: commit runs on the match
// goroutine after the reducer accepts the event but before any state is
// recorded. If commit fails the event is not applied, no sequence number
// is burned, and the error is returned so the caller can signal a
// transient failure — the client will retry and take this path again.
func (mc *Context) IngestCommit(e events.BallEvent, commit func(events.BallEvent) error) (ack events.Ack, committed events.BallEvent, commitErr error) {
	mc.Do(func() {
		if seq, dup := mc.seen[e.ID]; dup {
			ack = events.Ack{Duplicate: true, Seq: seq}
			return
		}

		st, ok := mc.Innings[e.Innings]
		if !ok || e.Innings != mc.CurrentInnings {
			ack = events.Ack{Rejected: true, Reason: fmt.Sprintf("innings %d not open", e.Innings)}
			return
		}

		e.Seq = mc.seq + 1
		next, err := st.Apply(e)
		if err != nil {
			ack = events.Ack{Rejected: true, Reason: err.Error()}
			return
		}

		if commit != nil {
			if commitErr = commit(e); commitErr != nil {
				return
			}
		}

		mc.seq = e.Seq
		mc.seen[e.ID] = e.Seq
		mc.Innings[e.Innings] = next
		mc.noteCompletion(e.Innings, next)

		ack = events.Ack{Accepted: true, Seq: e.Seq}
		committed = e
	})
	return ack, committed, commitErr
}

// noteCompletion marks the match completed when a deciding innings ends.
// A level second-innings chase is a tie, not a result — the match stays
// live so a super over can be opened.
func (mc *Context) noteCompletion(num int, st innings.State) {
	if st.Phase != innings.Completed || num < 2 {
		return
	}
	if num == 2 && st.Target > 0 && st.Runs == st.Target {
		return
	}
	mc.Status = events.MatchCompleted
}

// Snapshot is a point-in-time copy of the scorebook for read paths.
type Snapshot struct {
	ID             string
	HomeTeam       string
	AwayTeam       string
	TotalOvers     int
	Status         events.MatchStatus
	CurrentInnings int
	Innings        map[int]innings.State
	LastSeq        int64
	TakenAt        time.Time
}

// Snapshot copies the match state off the match goroutine.
func (mc *Context) Snapshot() Snapshot {
	var snap Snapshot
	mc.Do(func() {
		snap = Snapshot{
			ID:             mc.ID,
			HomeTeam:       mc.HomeTeam,
			AwayTeam:       mc.AwayTeam,
			TotalOvers:     mc.TotalOvers,
			Status:         mc.Status,
			CurrentInnings: mc.CurrentInnings,
			Innings:        make(map[int]innings.State, len(mc.Innings)),
			LastSeq:        mc.seq,
			TakenAt:        time.Now(),
		}
		for n, st := range mc.Innings {
			snap.Innings[n] = st
		}
	})
	return snap
}
