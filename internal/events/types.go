package events

import "time"

// Event is the envelope that flows through the in-process bus.
// Accepted deliveries and innings/match transitions are wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	MatchID   string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// EventBallAccepted carries a BallEvent with its assigned Seq.
	EventBallAccepted EventType = "ball_accepted"
	// EventInningsComplete carries an InningsCompleteEvent.
	EventInningsComplete EventType = "innings_complete"
	// EventMatchComplete carries a MatchCompleteEvent.
	EventMatchComplete EventType = "match_complete"
)

type InningsCompleteEvent struct {
	MatchID string `json:"match_id"`
	Innings int    `json:"innings"`
	Runs    int    `json:"runs"`
	Wickets int    `json:"wickets"`
	Balls   int    `json:"balls"`
}

type MatchCompleteEvent struct {
	MatchID string `json:"match_id"`
	Result  string `json:"result"`
}
