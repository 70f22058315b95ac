package broadcast

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

const (
	viewerSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Replayer serves the ordered event history used to bring a
// reconnecting viewer back up to date.
type Replayer interface {
	Since(matchID string, since int64) ([]events.BallEvent, error)
}

// frame carries a serialized envelope plus its ball sequence number
// (zero for lifecycle events) so the backlog flush can skip anything
// the replay already delivered.
type frame struct {
	seq  int64
	data []byte
}

type viewer struct {
	matchID string
	conn    *websocket.Conn
	send    chan frame
	done    chan struct{}

	// While a catch-up replay is in flight, live frames are parked in
	// backlog so the viewer sees replay first, then live, in order.
	mu       sync.Mutex
	catching bool
	backlog  []frame
}

func (v *viewer) enqueue(f frame) {
	v.mu.Lock()
	if v.catching {
		v.backlog = append(v.backlog, f)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	select {
	case v.send <- f:
	default:
		telemetry.Metrics.BroadcastDrops.Inc()
		telemetry.Warnf("broadcast: dropping frame for slow viewer match=%s", v.matchID)
	}
}

// Server fans out bus events to connected match viewers over WebSocket.
// One logical channel per match: a viewer subscribes with ?match=ID and
// only receives that match's events.
type Server struct {
	replayer Replayer

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

func NewServer(bus *events.Bus, replayer Replayer) *Server {
	s := &Server{
		replayer: replayer,
		viewers:  make(map[*viewer]struct{}),
	}
	bus.Subscribe(events.EventBallAccepted, s.forward)
	bus.Subscribe(events.EventInningsComplete, s.forward)
	bus.Subscribe(events.EventMatchComplete, s.forward)
	return s
}

// forward is called on the publisher's goroutine. It serializes the
// event once and enqueues it to the match's viewers (non-blocking).
func (s *Server) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("broadcast: marshal error: %v", err)
		return nil
	}

	f := frame{data: data}
	if ball, ok := evt.Payload.(events.BallEvent); ok {
		f.seq = ball.Seq
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for v := range s.viewers {
		if v.matchID != evt.MatchID {
			continue
		}
		v.enqueue(f)
	}
	return nil
}

// HandleWS upgrades a viewer connection. Viewers connect with
// ?match=ID and, optionally, ?since=N to replay history before going
// live. Missed events can also be fetched over the HTTP catch-up
// endpoint; the WebSocket replay is a convenience for viewers that
// only speak this protocol.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match")
	if matchID == "" {
		http.Error(w, "missing ?match= query param", http.StatusBadRequest)
		return
	}

	since, replay := int64(0), false
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("bad since parameter %q", raw), http.StatusBadRequest)
			return
		}
		since, replay = n, true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("broadcast: upgrade failed: %v", err)
		return
	}

	v := &viewer{
		matchID:  matchID,
		conn:     conn,
		send:     make(chan frame, viewerSendBuf),
		done:     make(chan struct{}),
		catching: replay,
	}

	s.mu.Lock()
	s.viewers[v] = struct{}{}
	s.mu.Unlock()

	telemetry.Plainf("broadcast: viewer connected match=%s since=%d", matchID, since)

	go s.writePump(v)
	go s.readPump(v)
	if replay {
		go s.catchup(v, since)
	}
}

// catchup streams the stored history to one viewer, then releases the
// parked live frames. Frames whose sequence the replay already covered
// are discarded so the viewer never sees a ball twice.
func (s *Server) catchup(v *viewer, since int64) {
	evts, err := s.replayer.Since(v.matchID, since)
	if err != nil {
		telemetry.Warnf("broadcast: replay match=%s: %v", v.matchID, err)
		evts = nil
	}

	last := since
	for _, e := range evts {
		data, err := MarshalEvent(events.Event{
			ID:        e.ID,
			Type:      events.EventBallAccepted,
			MatchID:   e.MatchID,
			Timestamp: e.CreatedAt,
			Payload:   e,
		})
		if err != nil {
			continue
		}
		select {
		case v.send <- frame{seq: e.Seq, data: data}:
			last = e.Seq
		case <-v.done:
			return
		}
	}

	v.release(last)
}

// release flushes the parked backlog and opens the live gate. The mutex
// is held across the whole flush so no concurrent enqueue can slip a
// live frame into the send channel ahead of a parked one. Frames whose
// sequence the replay already covered are discarded.
func (v *viewer) release(last int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, f := range v.backlog {
		if f.seq != 0 && f.seq <= last {
			continue
		}
		select {
		case v.send <- f:
		default:
			telemetry.Metrics.BroadcastDrops.Inc()
		}
	}
	v.backlog = nil
	v.catching = false
}

// writePump drains the viewer's send channel and writes to the WS
// connection. It owns the viewer lifecycle: on exit it removes the
// viewer from the map and closes the connection.
func (s *Server) writePump(v *viewer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeViewer(v)
		v.conn.Close()
	}()

	for {
		select {
		case f := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := v.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				telemetry.Warnf("broadcast: write error match=%s: %v", v.matchID, err)
				return
			}
		case <-v.done:
			return
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// Viewers never send upstream messages. On exit it signals writePump
// via v.done (never closes v.send).
func (s *Server) readPump(v *viewer) {
	defer close(v.done)

	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := v.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (s *Server) removeViewer(v *viewer) {
	s.mu.Lock()
	delete(s.viewers, v)
	s.mu.Unlock()
	telemetry.Plainf("broadcast: viewer disconnected match=%s", v.matchID)
}

// ViewerCount reports the number of connected viewers.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}
