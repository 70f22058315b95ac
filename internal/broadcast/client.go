package broadcast

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Client follows one match's broadcast feed and republishes received
// events onto a local in-process bus. It remembers the last ball
// sequence it saw, reconnects with ?since= so the server replays the
// gap, and drops any ball it has already delivered.
type Client struct {
	addr    string
	matchID string
	bus     *events.Bus
	lastSeq atomic.Int64
}

func NewClient(addr, matchID string, bus *events.Bus) *Client {
	return &Client{
		addr:    addr,
		matchID: matchID,
		bus:     bus,
	}
}

// LastSeq reports the highest ball sequence delivered so far.
func (c *Client) LastSeq() int64 {
	return c.lastSeq.Load()
}

// ConnectWithRetry connects to the broadcast server and reconnects on
// failure with exponential backoff. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connStart := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connStart) > time.Minute {
			attempt = 0
		}

		attempt++
		backoff := time.Duration(float64(minBackoff) * math.Pow(2, float64(min(attempt-1, 5))))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if err != nil {
			telemetry.Warnf("broadcast: connection lost (attempt %d): %v — retrying in %s", attempt, err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s/ws?match=%s&since=%d", c.addr, c.matchID, c.lastSeq.Load())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	telemetry.Infof("broadcast: connected to %s match=%s since=%d", c.addr, c.matchID, c.lastSeq.Load())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		evt, err := UnmarshalEvent(msg)
		if err != nil {
			telemetry.Warnf("broadcast: unmarshal error: %v", err)
			continue
		}

		if ball, ok := evt.Payload.(events.BallEvent); ok {
			if ball.Seq <= c.lastSeq.Load() {
				continue
			}
			c.lastSeq.Store(ball.Seq)
		}

		c.bus.Publish(evt)
	}
}
