package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stumpline/cricket-live/internal/events"
)

// Envelope is the wire format for events sent over the broadcast WebSocket.
// Seq is duplicated out of the payload so subscribers can gap-check and
// deduplicate without decoding the body.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	MatchID   string          `json:"match_id"`
	Seq       int64           `json:"seq,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		MatchID:   evt.MatchID,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	if ball, ok := evt.Payload.(events.BallEvent); ok {
		env.Seq = ball.Seq
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		MatchID:   env.MatchID,
		Timestamp: env.Timestamp,
	}

	switch evt.Type {
	case events.EventBallAccepted:
		var ball events.BallEvent
		if err := json.Unmarshal(env.Payload, &ball); err != nil {
			return evt, fmt.Errorf("unmarshal ball_accepted: %w", err)
		}
		evt.Payload = ball
	case events.EventInningsComplete:
		var ic events.InningsCompleteEvent
		if err := json.Unmarshal(env.Payload, &ic); err != nil {
			return evt, fmt.Errorf("unmarshal innings_complete: %w", err)
		}
		evt.Payload = ic
	case events.EventMatchComplete:
		var mc events.MatchCompleteEvent
		if err := json.Unmarshal(env.Payload, &mc); err != nil {
			return evt, fmt.Errorf("unmarshal match_complete: %w", err)
		}
		evt.Payload = mc
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}

	return evt, nil
}
