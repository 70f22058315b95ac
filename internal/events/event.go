package events

import (
	"time"

	"github.com/google/uuid"
)

// Extra classifies a delivery that awards runs outside the striker's tally.
// Empty means a normal delivery off the bat.
type Extra string

const (
	ExtraNone   Extra = ""
	ExtraWide   Extra = "wide"
	ExtraNoBall Extra = "no_ball"
	ExtraBye    Extra = "bye"
	ExtraLegBye Extra = "leg_bye"
)

// IsLegal reports whether a delivery with this extra counts toward the
// six-ball over. Wides and no-balls are re-bowled.
func (e Extra) IsLegal() bool {
	return e != ExtraWide && e != ExtraNoBall
}

type WicketKind string

const (
	WicketBowled    WicketKind = "bowled"
	WicketCaught    WicketKind = "caught"
	WicketLBW       WicketKind = "lbw"
	WicketRunOut    WicketKind = "run_out"
	WicketStumped   WicketKind = "stumped"
	WicketHitWicket WicketKind = "hit_wicket"
)

type MatchStatus string

const (
	MatchUpcoming  MatchStatus = "upcoming"
	MatchLive      MatchStatus = "live"
	MatchCompleted MatchStatus = "completed"
)

// BallEvent is the atomic unit of truth for a delivery.
//
// ID is generated on the scoring client and is the server's deduplication
// key — resubmitting the same ID never reapplies the delivery. Seq is
// assigned by the server when the event is accepted; it is 0 on events that
// have not been acknowledged yet.
//
// Runs holds the runs physically completed by the batters: off the bat on a
// normal delivery or no-ball, as byes/leg-byes/wides on the respective
// extras. The one-run penalty for a wide or no-ball is implicit in the
// Extra flag, not in Runs.
type BallEvent struct {
	ID      string `json:"id"`
	MatchID string `json:"match_id"`
	Innings int    `json:"innings"` // 1, 2, or 3 for a super over
	Over    int    `json:"over"`
	Ball    int    `json:"ball"` // legal-ball index within the over, 1..6

	Runs  int   `json:"runs"`
	Extra Extra `json:"extra,omitempty"`

	Wicket     bool       `json:"wicket,omitempty"`
	WicketKind WicketKind `json:"wicket_kind,omitempty"`
	OutBatter  string     `json:"out_batter,omitempty"`

	Striker    string `json:"striker"`
	NonStriker string `json:"non_striker"`
	Bowler     string `json:"bowler"`

	// Shot is an optional wagon-wheel direction tag for scoring strokes,
	// e.g. "cover", "midwicket", "fine_leg".
	Shot string `json:"shot,omitempty"`

	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBallEvent stamps a fresh client-side identifier and creation time.
func NewBallEvent(matchID string, innings, over, ball int) BallEvent {
	return BallEvent{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		Innings:   innings,
		Over:      over,
		Ball:      ball,
		CreatedAt: time.Now().UTC(),
	}
}

// BatRuns returns the runs credited to the striker's personal tally.
func (b BallEvent) BatRuns() int {
	if b.Extra == ExtraNone || b.Extra == ExtraNoBall {
		return b.Runs
	}
	return 0
}

// TotalRuns returns the runs added to the innings total by this delivery,
// including the one-run wide/no-ball penalty.
func (b BallEvent) TotalRuns() int {
	if b.Extra == ExtraWide || b.Extra == ExtraNoBall {
		return b.Runs + 1
	}
	return b.Runs
}

// Ack is the server's reply to an ingested BallEvent.
// Exactly one of Accepted, Duplicate, or Rejected is true. Seq carries the
// server-assigned sequence number on the accepted and duplicate paths.
type Ack struct {
	Accepted  bool   `json:"accepted,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
