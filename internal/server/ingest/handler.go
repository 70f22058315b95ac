package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/stumpline/cricket-live/internal/core/dls"
	"github.com/stumpline/cricket-live/internal/core/innings"
	"github.com/stumpline/cricket-live/internal/core/match"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

// Handler exposes the scoring API: match/innings lifecycle, idempotent
// ball ingestion, and catch-up replay.
//
// Routes:
//
//	POST /matches              -> register a match
//	POST /matches/{id}/innings -> start an innings
//	POST /matches/{id}/balls     -> ingest a ball event
//	GET  /matches/{id}/balls     -> catch-up replay (?since=N)
//	GET  /matches/{id}/analytics -> derived projections (?innings=N)
//	GET  /matches/{id}/target    -> rain-revised chase target
//	GET  /matches/{id}           -> scorebook snapshot
//	GET  /health                 -> 200 OK
type Handler struct {
	registry *match.Registry
	log      *Log
	bus      *events.Bus
	limiter  *rate.Limiter

	table *dls.Table
	g50   int

	// catchup collapses identical replay scans when a stand full of
	// viewers reconnects at once.
	catchup singleflight.Group
}

func NewHandler(registry *match.Registry, log *Log, bus *events.Bus, ingestRate rate.Limit, burst int) *Handler {
	return &Handler{
		registry: registry,
		log:      log,
		bus:      bus,
		limiter:  rate.NewLimiter(ingestRate, burst),
		table:    dls.Standard(),
		g50:      dls.DefaultG50,
	}
}

// SetResources swaps the revised-target resource table and average
// full-innings score, for deployments tracking a newer table edition.
func (h *Handler) SetResources(table *dls.Table, g50 int) {
	if table != nil {
		h.table = table
	}
	if g50 > 0 {
		h.g50 = g50
	}
}

// RegisterRoutes wires HTTP routes onto the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /matches", h.createMatch)
	mux.HandleFunc("POST /matches/{id}/innings", h.startInnings)
	mux.HandleFunc("POST /matches/{id}/balls", h.ingestBall)
	mux.HandleFunc("GET /matches/{id}/balls", h.replayBalls)
	mux.HandleFunc("GET /matches/{id}/analytics", h.analyticsView)
	mux.HandleFunc("GET /matches/{id}/target", h.revisedTarget)
	mux.HandleFunc("GET /matches/{id}", h.snapshot)
	mux.HandleFunc("GET /health", h.healthCheck)
}

type createMatchRequest struct {
	ID         string `json:"id"`
	HomeTeam   string `json:"home_team"`
	AwayTeam   string `json:"away_team"`
	TotalOvers int    `json:"total_overs"`
}

func (h *Handler) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed body: %v", err)
		return
	}

	mc, err := h.registry.Create(req.ID, req.HomeTeam, req.AwayTeam, req.TotalOvers)
	if err != nil {
		httpError(w, http.StatusConflict, "%v", err)
		return
	}

	// Re-registering after a restart: fold the durable record back into a
	// live scorebook — the recorded openings, each replayed over its slice
	// of the committed event log.
	if err := h.restoreMatch(mc); err != nil {
		h.registry.Delete(req.ID)
		telemetry.Errorf("ingest: restore match %s: %v", req.ID, err)
		httpError(w, http.StatusInternalServerError, "restore match: %v", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": mc.ID})
}

func (h *Handler) restoreMatch(mc *match.Context) error {
	openings, err := h.log.Openings(mc.ID)
	if err != nil {
		return err
	}
	if len(openings) == 0 {
		return nil
	}
	evts, err := h.log.Since(mc.ID, 0)
	if err != nil {
		return err
	}
	if err := mc.Restore(openings, evts); err != nil {
		return err
	}
	snap := mc.Snapshot()
	telemetry.Infof("ingest: match %s resumed at seq %d (innings %d, %d events)",
		mc.ID, snap.LastSeq, snap.CurrentInnings, len(evts))
	return nil
}

type startInningsRequest struct {
	Innings     int    `json:"innings"`
	BattingTeam string `json:"batting_team"`
	Striker     string `json:"striker"`
	NonStriker  string `json:"non_striker"`
	Bowler      string `json:"bowler"`
	Target      int    `json:"target,omitempty"`
}

func (h *Handler) startInnings(w http.ResponseWriter, r *http.Request) {
	mc, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown match")
		return
	}

	var req startInningsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed body: %v", err)
		return
	}

	op := match.InningsOpening{
		Innings: req.Innings, BattingTeam: match.CanonicalName(req.BattingTeam),
		Striker: req.Striker, NonStriker: req.NonStriker,
		Bowler: req.Bowler, Target: req.Target,
	}
	err := mc.StartInnings(op.Innings, op.BattingTeam, op.Striker, op.NonStriker, op.Bowler, op.Target)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}

	// The opening must outlive this process before the start is confirmed,
	// or a restart could not rebuild the innings. The write is idempotent,
	// so a retried request converges.
	if err := h.log.AppendOpening(mc.ID, op); err != nil {
		telemetry.Errorf("ingest: persist opening for match %s: %v", mc.ID, err)
		httpError(w, http.StatusInternalServerError, "innings not persisted, retry")
		return
	}

	telemetry.Infof("ingest: match %s innings %d started  batting=%s", mc.ID, req.Innings, req.BattingTeam)
	writeJSON(w, http.StatusOK, map[string]any{"innings": req.Innings})
}

// ingestBall is the idempotent ingestion endpoint. The response body is
// always an events.Ack: accepted, duplicate, or rejected.
func (h *Handler) ingestBall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !h.limiter.Allow() {
		httpError(w, http.StatusTooManyRequests, "ingest rate exceeded")
		return
	}

	mc, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown match")
		return
	}

	var e events.BallEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		httpError(w, http.StatusBadRequest, "malformed ball event: %v", err)
		return
	}
	if err := validateBall(mc.ID, e); err != nil {
		writeJSON(w, http.StatusOK, events.Ack{Rejected: true, Reason: err.Error()})
		telemetry.Metrics.Rejections.Inc()
		return
	}

	ack, committed, commitErr := mc.IngestCommit(e, h.log.Append)
	if commitErr != nil {
		telemetry.Errorf("ingest: persist seq for match %s: %v", mc.ID, commitErr)
		httpError(w, http.StatusInternalServerError, "event not persisted, retry")
		return
	}

	switch {
	case ack.Accepted:
		telemetry.Metrics.BallsIngested.Inc()
		h.publishAccepted(mc, committed)
	case ack.Duplicate:
		telemetry.Metrics.Duplicates.Inc()
	case ack.Rejected:
		telemetry.Metrics.Rejections.Inc()
		telemetry.Warnf("ingest: match %s rejected %s: %s", mc.ID, e.ID, ack.Reason)
	}

	telemetry.Metrics.IngestLatency.Record(time.Since(start))
	writeJSON(w, http.StatusOK, ack)
}

// publishAccepted fans the committed event out on the bus, plus the
// innings/match transitions it may have caused.
func (h *Handler) publishAccepted(mc *match.Context, committed events.BallEvent) {
	h.bus.Publish(events.Event{
		ID:        committed.ID,
		Type:      events.EventBallAccepted,
		MatchID:   mc.ID,
		Timestamp: time.Now(),
		Payload:   committed,
	})

	snap := mc.Snapshot()
	st, ok := snap.Innings[committed.Innings]
	if !ok || st.Phase != innings.Completed {
		return
	}

	h.bus.Publish(events.Event{
		Type:      events.EventInningsComplete,
		MatchID:   mc.ID,
		Timestamp: time.Now(),
		Payload: events.InningsCompleteEvent{
			MatchID: mc.ID,
			Innings: committed.Innings,
			Runs:    st.Runs,
			Wickets: st.Wickets,
			Balls:   st.LegalBalls,
		},
	})

	if snap.Status == events.MatchCompleted {
		h.bus.Publish(events.Event{
			Type:      events.EventMatchComplete,
			MatchID:   mc.ID,
			Timestamp: time.Now(),
			Payload: events.MatchCompleteEvent{
				MatchID: mc.ID,
				Result:  resultLine(snap),
			},
		})
	}
}

// replayBalls serves catch-up: the ordered events with sequence numbers
// strictly greater than ?since=N, gap-free and duplicate-free.
func (h *Handler) replayBalls(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "bad since parameter %q", raw)
			return
		}
		since = n
	}

	telemetry.Metrics.CatchupRequests.Inc()

	key := fmt.Sprintf("%s:%d", matchID, since)
	v, err, _ := h.catchup.Do(key, func() (any, error) {
		return h.log.Since(matchID, since)
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "replay: %v", err)
		return
	}

	evts := v.([]events.BallEvent)
	if evts == nil {
		evts = []events.BallEvent{}
	}
	writeJSON(w, http.StatusOK, evts)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	mc, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown match")
		return
	}
	snap := mc.Snapshot()

	type inningsLine struct {
		Innings int    `json:"innings"`
		Batting string `json:"batting"`
		Runs    int    `json:"runs"`
		Wickets int    `json:"wickets"`
		Overs   string `json:"overs"`
		Target  int    `json:"target,omitempty"`
	}
	out := struct {
		ID      string             `json:"id"`
		Home    string             `json:"home_team"`
		Away    string             `json:"away_team"`
		Status  events.MatchStatus `json:"status"`
		LastSeq int64              `json:"last_seq"`
		Innings []inningsLine      `json:"innings"`
	}{
		ID: snap.ID, Home: snap.HomeTeam, Away: snap.AwayTeam,
		Status: snap.Status, LastSeq: snap.LastSeq,
	}
	for n := 1; n <= 3; n++ {
		if st, ok := snap.Innings[n]; ok {
			out.Innings = append(out.Innings, inningsLine{
				Innings: n, Batting: st.BattingTeam, Runs: st.Runs,
				Wickets: st.Wickets, Overs: st.OversBowled(), Target: st.Target,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","service":"scoring"}`))
}

// validateBall screens out malformed payloads before they reach the match
// goroutine. Logical violations (ordering, striker identity) are the
// reducer's call, not ours.
func validateBall(matchID string, e events.BallEvent) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("missing event id")
	case e.MatchID != matchID:
		return fmt.Errorf("event match %q does not match URL", e.MatchID)
	case e.Innings < 1 || e.Innings > 3:
		return fmt.Errorf("innings %d out of range", e.Innings)
	// Overthrows can stretch a single delivery well past a boundary four.
	case e.Runs < 0 || e.Runs > 10:
		return fmt.Errorf("runs %d out of range", e.Runs)
	case e.Over < 0 || e.Ball < 1 || e.Ball > 6:
		return fmt.Errorf("position %d.%d out of range", e.Over, e.Ball)
	}
	switch e.Extra {
	case events.ExtraNone, events.ExtraWide, events.ExtraNoBall, events.ExtraBye, events.ExtraLegBye:
	default:
		return fmt.Errorf("unknown extra %q", e.Extra)
	}
	if e.Wicket && e.WicketKind == "" {
		return fmt.Errorf("wicket without dismissal kind")
	}
	return nil
}

func resultLine(snap match.Snapshot) string {
	if third, ok := snap.Innings[3]; ok {
		switch {
		case third.Runs > third.Target:
			return fmt.Sprintf("%s won the super over", third.BattingTeam)
		case third.Runs == third.Target:
			return "match tied after the super over"
		default:
			return fmt.Sprintf("%s won the super over", opponentOf(snap, third.BattingTeam))
		}
	}

	first, second := snap.Innings[1], snap.Innings[2]
	switch {
	case second.Runs > second.Target:
		return fmt.Sprintf("%s won by %d wickets", second.BattingTeam, 10-second.Wickets)
	case second.Runs == second.Target:
		return "match tied"
	default:
		return fmt.Sprintf("%s won by %d runs", first.BattingTeam, first.Runs-second.Runs)
	}
}

func opponentOf(snap match.Snapshot, team string) string {
	if team == snap.HomeTeam {
		return snap.AwayTeam
	}
	return snap.HomeTeam
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Warnf("ingest: write response: %v", err)
	}
}
