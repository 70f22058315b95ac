package innings

import (
	"errors"
	"fmt"

	"github.com/stumpline/cricket-live/internal/events"
)

// Domain error kinds. Callers match with errors.Is.
var (
	// ErrValidation marks a genuinely impossible event — never retried.
	ErrValidation = errors.New("invalid ball event")
	// ErrOrdering marks an event whose over/ball position does not follow
	// the current state. The operator must re-sequence locally.
	ErrOrdering = errors.New("ball event out of order")
)

type Phase string

const (
	NotStarted Phase = "not_started"
	InProgress Phase = "in_progress"
	Completed  Phase = "completed"
)

// BatterScore is one batter's personal tally.
type BatterScore struct {
	ID    string
	Runs  int
	Balls int
	Out   bool
	How   events.WicketKind
}

// FallOfWicket records the team score when a wicket fell.
type FallOfWicket struct {
	Batter  string
	Kind    events.WicketKind
	Score   int
	Wicket  int
	OverNum int
	BallNum int
}

// State is the full scorebook position of one innings.
//
// State is a value: Apply returns a new State and never mutates its
// receiver, so the reducer is a pure fold over the ordered event log and
// snapshots can be retained freely.
//
// Target, when non-zero, is the first innings' total — the chasing side
// completes the innings the moment Runs strictly exceeds it.
type State struct {
	Innings     int
	BattingTeam string
	TotalOvers  int
	Target      int

	Phase Phase

	Runs       int
	Wickets    int
	LegalBalls int

	Wides   int
	NoBalls int
	Byes    int
	LegByes int

	Striker    string // empty while a wicket awaits its replacement batter
	NonStriker string
	Bowler     string

	Batters []BatterScore
	Falls   []FallOfWicket

	// LastSeq is the highest server sequence number applied. Re-delivery
	// of any event at or below it is a silent no-op.
	LastSeq int64
}

// NewState opens an innings. Starting requires the batting team, both
// opening batsmen, and the opening bowler.
func NewState(inningsNum int, battingTeam string, totalOvers, target int, striker, nonStriker, bowler string) (State, error) {
	if battingTeam == "" || striker == "" || nonStriker == "" || bowler == "" {
		return State{}, fmt.Errorf("start innings %d: batting team, openers and bowler required: %w", inningsNum, ErrValidation)
	}
	if striker == nonStriker {
		return State{}, fmt.Errorf("start innings %d: openers must differ: %w", inningsNum, ErrValidation)
	}
	if totalOvers < 1 {
		return State{}, fmt.Errorf("start innings %d: total overs %d: %w", inningsNum, totalOvers, ErrValidation)
	}
	return State{
		Innings:     inningsNum,
		BattingTeam: battingTeam,
		TotalOvers:  totalOvers,
		Target:      target,
		Phase:       InProgress,
		Striker:     striker,
		NonStriker:  nonStriker,
		Bowler:      bowler,
		Batters: []BatterScore{
			{ID: striker},
			{ID: nonStriker},
		},
	}, nil
}

// NextOver returns the over number the next legal delivery belongs to.
func (s State) NextOver() int { return s.LegalBalls / 6 }

// NextBall returns the 1-based legal-ball index of the next delivery.
func (s State) NextBall() int { return s.LegalBalls%6 + 1 }

// OversBowled renders the traditional O.B notation, e.g. 37.4.
func (s State) OversBowled() string {
	return fmt.Sprintf("%d.%d", s.LegalBalls/6, s.LegalBalls%6)
}

// Apply folds one ball event into the innings.
//
// Re-delivery of an already-applied event (Seq at or below LastSeq) returns
// the state unchanged with no error — this makes the reducer idempotent
// under retransmission. A genuinely new event that violates an invariant
// returns ErrValidation or ErrOrdering.
func (s State) Apply(e events.BallEvent) (State, error) {
	if e.Seq != 0 && e.Seq <= s.LastSeq {
		return s, nil
	}

	switch s.Phase {
	case NotStarted:
		return s, fmt.Errorf("innings %d not started: %w", s.Innings, ErrValidation)
	case Completed:
		return s, fmt.Errorf("innings %d already complete: %w", s.Innings, ErrValidation)
	}

	if e.Innings != s.Innings {
		return s, fmt.Errorf("event for innings %d applied to innings %d: %w", e.Innings, s.Innings, ErrValidation)
	}
	if e.Over != s.NextOver() || e.Ball != s.NextBall() {
		return s, fmt.Errorf("event at %d.%d, innings at %d.%d: %w",
			e.Over, e.Ball, s.NextOver(), s.NextBall(), ErrOrdering)
	}
	if e.Wicket && s.Wickets >= 10 {
		return s, fmt.Errorf("wicket with ten already down: %w", ErrValidation)
	}

	next := s.clone()

	if err := next.admitStriker(e); err != nil {
		return s, err
	}

	switch e.Extra {
	case events.ExtraWide:
		// Penalty run plus any completed runs, all to the wides bucket.
		// The legal-ball counter does not move — the ball is re-bowled.
		next.Runs += e.Runs + 1
		next.Wides += e.Runs + 1
	case events.ExtraNoBall:
		// Penalty to extras; completed runs are off the bat.
		next.Runs += e.Runs + 1
		next.NoBalls++
		next.creditStriker(e.Striker, e.Runs, true)
	case events.ExtraBye:
		next.Runs += e.Runs
		next.Byes += e.Runs
		next.creditStriker(e.Striker, 0, true)
	case events.ExtraLegBye:
		next.Runs += e.Runs
		next.LegByes += e.Runs
		next.creditStriker(e.Striker, 0, true)
	default:
		next.Runs += e.Runs
		next.creditStriker(e.Striker, e.Runs, true)
	}

	legal := e.Extra.IsLegal()
	if legal {
		next.LegalBalls++
	}

	// Ends change on odd completed runs, then again when the over turns.
	// A single off the last ball therefore keeps the same batter on strike.
	if legal && e.Runs%2 == 1 {
		next.Striker, next.NonStriker = next.NonStriker, next.Striker
	}
	if legal && next.LegalBalls%6 == 0 {
		next.Striker, next.NonStriker = next.NonStriker, next.Striker
	}

	if e.Bowler != "" {
		next.Bowler = e.Bowler
	}

	if e.Wicket {
		next.fallOfWicket(e)
	}

	if e.Seq > next.LastSeq {
		next.LastSeq = e.Seq
	}

	if next.LegalBalls >= next.TotalOvers*6 ||
		next.Wickets >= 10 ||
		(next.Target > 0 && next.Runs > next.Target) {
		next.Phase = Completed
	}

	return next, nil
}

// Replay folds an ordered event slice into a fresh copy of the opening
// state. The result is identical to applying the events one at a time.
func Replay(opening State, evts []events.BallEvent) (State, error) {
	s := opening
	for _, e := range evts {
		var err error
		if s, err = s.Apply(e); err != nil {
			return s, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
	}
	return s, nil
}

// admitStriker checks the event's striker against the current pair, filling
// a post-wicket vacancy with a new batter when needed.
func (s *State) admitStriker(e events.BallEvent) error {
	if s.Striker == "" {
		if e.Striker == "" || e.Striker == s.NonStriker {
			return fmt.Errorf("replacement striker required after wicket: %w", ErrValidation)
		}
		for _, b := range s.Batters {
			if b.ID == e.Striker && b.Out {
				return fmt.Errorf("batter %s already out: %w", e.Striker, ErrValidation)
			}
		}
		s.Striker = e.Striker
		s.ensureBatter(e.Striker)
		return nil
	}
	if e.Striker != s.Striker {
		return fmt.Errorf("event striker %s, innings striker %s: %w", e.Striker, s.Striker, ErrValidation)
	}
	return nil
}

// fallOfWicket books the dismissal and vacates the out batter's end.
// The next event must name the replacement striker.
func (s *State) fallOfWicket(e events.BallEvent) {
	out := e.OutBatter
	if out == "" {
		out = e.Striker
	}

	s.Wickets++
	s.Falls = append(s.Falls, FallOfWicket{
		Batter:  out,
		Kind:    e.WicketKind,
		Score:   s.Runs,
		Wicket:  s.Wickets,
		OverNum: e.Over,
		BallNum: e.Ball,
	})

	for i := range s.Batters {
		if s.Batters[i].ID == out {
			s.Batters[i].Out = true
			s.Batters[i].How = e.WicketKind
		}
	}

	switch out {
	case s.Striker:
		s.Striker = ""
	case s.NonStriker:
		s.NonStriker = ""
	}
}

func (s *State) creditStriker(id string, runs int, faced bool) {
	s.ensureBatter(id)
	for i := range s.Batters {
		if s.Batters[i].ID == id {
			s.Batters[i].Runs += runs
			if faced {
				s.Batters[i].Balls++
			}
			return
		}
	}
}

func (s *State) ensureBatter(id string) {
	for _, b := range s.Batters {
		if b.ID == id {
			return
		}
	}
	s.Batters = append(s.Batters, BatterScore{ID: id})
}

// clone deep-copies the slices so Apply never aliases its receiver.
func (s State) clone() State {
	next := s
	next.Batters = append([]BatterScore(nil), s.Batters...)
	next.Falls = append([]FallOfWicket(nil), s.Falls...)
	return next
}

// BatterByID returns a batter's tally, if they have batted.
func (s State) BatterByID(id string) (BatterScore, bool) {
	for _, b := range s.Batters {
		if b.ID == id {
			return b, true
		}
	}
	return BatterScore{}, false
}
