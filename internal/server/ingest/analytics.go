package ingest

import (
	"net/http"
	"strconv"

	"github.com/stumpline/cricket-live/internal/core/analytics"
	"github.com/stumpline/cricket-live/internal/core/dls"
	"github.com/stumpline/cricket-live/internal/events"
)

type analyticsResponse struct {
	Innings      int                   `json:"innings"`
	RunRate      *float64              `json:"run_rate,omitempty"`
	RequiredRate *float64              `json:"required_rate,omitempty"`
	Partnership  analytics.Partnership `json:"partnership"`
	Manhattan    []int                 `json:"manhattan"`
	Worm         []int                 `json:"worm"`
	WagonWheel   map[string]int        `json:"wagon_wheel"`
}

// analyticsView serves the derived projections for one innings,
// recomputed from the event log on each request.
func (h *Handler) analyticsView(w http.ResponseWriter, r *http.Request) {
	mc, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown match")
		return
	}
	snap := mc.Snapshot()

	inningsNo := snap.CurrentInnings
	if raw := r.URL.Query().Get("innings"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 3 {
			httpError(w, http.StatusBadRequest, "bad innings parameter %q", raw)
			return
		}
		inningsNo = n
	}

	all, err := h.log.Since(mc.ID, 0)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "read event log: %v", err)
		return
	}
	var evts []events.BallEvent
	for _, e := range all {
		if e.Innings == inningsNo {
			evts = append(evts, e)
		}
	}

	resp := analyticsResponse{
		Innings:     inningsNo,
		Partnership: analytics.CurrentPartnership(evts),
		Manhattan:   analytics.Manhattan(evts),
		Worm:        analytics.Worm(evts),
		WagonWheel:  analytics.WagonWheel(evts),
	}
	if rr, ok := analytics.RunRate(evts); ok {
		resp.RunRate = &rr
	}
	if st, ok := snap.Innings[inningsNo]; ok && st.Target > 0 {
		// Target here is the score to beat; the chase must score one more.
		if req, ok := analytics.RequiredRate(evts, st.Target+1, snap.TotalOvers); ok {
			resp.RequiredRate = &req
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// revisedTarget computes the rain-adjusted chase target for the current
// score line. The interruption is described by the query parameters;
// the setting side's score and the match length come from the scorebook.
func (h *Handler) revisedTarget(w http.ResponseWriter, r *http.Request) {
	mc, ok := h.registry.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown match")
		return
	}
	snap := mc.Snapshot()

	first, ok := snap.Innings[1]
	if !ok {
		httpError(w, http.StatusUnprocessableEntity, "first innings has not started")
		return
	}

	oversAvailable, err := strconv.Atoi(r.URL.Query().Get("overs_available"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad overs_available parameter")
		return
	}
	wicketsLost := 0
	runsSoFar := 0
	if second, ok := snap.Innings[2]; ok {
		wicketsLost = second.Wickets
		runsSoFar = second.Runs
	}
	if raw := r.URL.Query().Get("wickets_lost"); raw != "" {
		if wicketsLost, err = strconv.Atoi(raw); err != nil {
			httpError(w, http.StatusBadRequest, "bad wickets_lost parameter")
			return
		}
	}

	in := dls.Input{
		Team1Runs:      first.Runs,
		TotalOvers:     snap.TotalOvers,
		OversAvailable: oversAvailable,
		WicketsLost:    wicketsLost,
		RunsSoFar:      runsSoFar,
		G50:            h.g50,
	}
	res, err := dls.Calc(h.table, in)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
