package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stumpline/cricket-live/internal/events"
)

type fakeReplayer struct {
	history map[string][]events.BallEvent
}

func (f *fakeReplayer) Since(matchID string, since int64) ([]events.BallEvent, error) {
	var out []events.BallEvent
	for _, e := range f.history[matchID] {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func storedBall(matchID string, seq int64, runs int) events.BallEvent {
	e := events.NewBallEvent(matchID, 1, int(seq-1)/6, int(seq-1)%6+1)
	e.Seq = seq
	e.Runs = runs
	return e
}

func newHub(t *testing.T, replayer Replayer) (*events.Bus, *Server, *httptest.Server) {
	t.Helper()
	bus := events.NewBus()
	s := NewServer(bus, replayer)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bus, s, srv
}

func dialViewer(t *testing.T, srv *httptest.Server, s *Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.ViewerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	evt, err := UnmarshalEvent(msg)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return evt
}

func publishBall(bus *events.Bus, e events.BallEvent) {
	bus.Publish(events.Event{
		ID:        e.ID,
		Type:      events.EventBallAccepted,
		MatchID:   e.MatchID,
		Timestamp: time.Now(),
		Payload:   e,
	})
}

func TestFanoutFiltersByMatch(t *testing.T) {
	bus, s, srv := newHub(t, &fakeReplayer{})
	conn := dialViewer(t, srv, s, "match=m1")

	// A foreign match's ball must never reach this viewer.
	publishBall(bus, storedBall("m2", 1, 4))
	publishBall(bus, storedBall("m1", 1, 6))

	evt := readEvent(t, conn)
	if evt.MatchID != "m1" {
		t.Fatalf("received event for match %s", evt.MatchID)
	}
	ball := evt.Payload.(events.BallEvent)
	if ball.Seq != 1 || ball.Runs != 6 {
		t.Errorf("ball = seq %d runs %d, want seq 1 runs 6", ball.Seq, ball.Runs)
	}
}

func TestCatchupReplayThenLive(t *testing.T) {
	replayer := &fakeReplayer{history: map[string][]events.BallEvent{
		"m1": {storedBall("m1", 1, 1), storedBall("m1", 2, 4), storedBall("m1", 3, 0)},
	}}
	bus, s, srv := newHub(t, replayer)
	conn := dialViewer(t, srv, s, "match=m1&since=0")

	for want := int64(1); want <= 3; want++ {
		ball := readEvent(t, conn).Payload.(events.BallEvent)
		if ball.Seq != want {
			t.Fatalf("replay seq = %d, want %d", ball.Seq, want)
		}
	}

	publishBall(bus, storedBall("m1", 4, 2))
	if ball := readEvent(t, conn).Payload.(events.BallEvent); ball.Seq != 4 {
		t.Errorf("live seq = %d, want 4", ball.Seq)
	}

	// Lifecycle events ride the same channel.
	bus.Publish(events.Event{
		Type:      events.EventInningsComplete,
		MatchID:   "m1",
		Timestamp: time.Now(),
		Payload:   events.InningsCompleteEvent{MatchID: "m1", Innings: 1, Runs: 7, Wickets: 0, Balls: 4},
	})
	evt := readEvent(t, conn)
	if evt.Type != events.EventInningsComplete {
		t.Fatalf("type = %s, want %s", evt.Type, events.EventInningsComplete)
	}
	if ic := evt.Payload.(events.InningsCompleteEvent); ic.Runs != 7 {
		t.Errorf("innings runs = %d, want 7", ic.Runs)
	}
}

func TestBacklogFlushesBeforeLiveGateOpens(t *testing.T) {
	v := &viewer{
		matchID:  "m1",
		send:     make(chan frame, 8),
		done:     make(chan struct{}),
		catching: true,
	}

	// Live frames arriving mid-replay park in the backlog.
	v.enqueue(frame{seq: 4})
	v.enqueue(frame{seq: 5})
	if len(v.send) != 0 {
		t.Fatalf("%d frames sent before release", len(v.send))
	}

	// The replay covered up to seq 4, so 4 is dropped and 5 flushes.
	// Anything enqueued after release rides behind the flushed backlog.
	v.release(4)
	v.enqueue(frame{seq: 6})

	var got []int64
	for len(v.send) > 0 {
		got = append(got, (<-v.send).seq)
	}
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("delivered seqs %v, want [5 6]", got)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.catching || v.backlog != nil {
		t.Errorf("gate still closed after release: catching=%v backlog=%v", v.catching, v.backlog)
	}
}

func TestClientResumesAndDeduplicates(t *testing.T) {
	replayer := &fakeReplayer{history: map[string][]events.BallEvent{
		"m1": {storedBall("m1", 1, 1), storedBall("m1", 2, 4)},
	}}
	bus, _, srv := newHub(t, replayer)

	local := events.NewBus()
	got := make(chan int64, 16)
	local.Subscribe(events.EventBallAccepted, func(evt events.Event) error {
		got <- evt.Payload.(events.BallEvent).Seq
		return nil
	})

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "m1", local)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.ConnectWithRetry(ctx)

	expect := func(want int64) {
		t.Helper()
		select {
		case seq := <-got:
			if seq != want {
				t.Fatalf("delivered seq %d, want %d", seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for seq %d", want)
		}
	}

	expect(1)
	expect(2)

	// A retransmitted ball the client has already seen is swallowed;
	// only the new sequence comes through.
	publishBall(bus, storedBall("m1", 2, 4))
	publishBall(bus, storedBall("m1", 3, 6))
	expect(3)

	if c.LastSeq() != 3 {
		t.Errorf("LastSeq = %d, want 3", c.LastSeq())
	}
}
