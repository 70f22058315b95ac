// The scorer is the offline-first scoring client. Every ball typed at
// the prompt is applied to a local copy of the innings and written to
// the durable outbox before any network attempt; the push loop drains
// the outbox to the server whenever connectivity allows.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stumpline/cricket-live/internal/client/push"
	"github.com/stumpline/cricket-live/internal/client/queue"
	"github.com/stumpline/cricket-live/internal/config"
	"github.com/stumpline/cricket-live/internal/core/innings"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	matchID := flag.String("match", "", "match id (required)")
	home := flag.String("home", "", "home team")
	away := flag.String("away", "", "away team")
	overs := flag.Int("overs", 50, "overs per innings")
	inningsNo := flag.Int("innings", 1, "innings number (1, 2, or 3 for a super over)")
	batting := flag.String("batting", "", "batting team")
	striker := flag.String("striker", "", "opening striker")
	nonStriker := flag.String("nonstriker", "", "opening non-striker")
	bowler := flag.String("bowler", "", "opening bowler")
	target := flag.Int("target", 0, "score to beat (second innings; 0 = first innings total)")
	flag.Parse()

	if *matchID == "" || *batting == "" || *striker == "" || *nonStriker == "" || *bowler == "" {
		flag.Usage()
		os.Exit(2)
	}

	totalOvers := *overs
	if *inningsNo == 3 {
		totalOvers = 1
	}
	st, err := innings.NewState(*inningsNo, *batting, totalOvers, *target, *striker, *nonStriker, *bowler)
	if err != nil {
		telemetry.Errorf("open innings: %v", err)
		os.Exit(1)
	}

	q, err := queue.Open(cfg.OutboxPath)
	if err != nil {
		telemetry.Errorf("outbox: %v", err)
		os.Exit(1)
	}
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pusher := push.NewPusher(q, push.NewHTTPTransport(cfg.ServerURL), cfg.PushMin, cfg.PushMax, cfg.PushInterval)
	go pusher.Run(ctx)

	// Match registration is not queued, so keep trying in the background
	// until the server answers. Balls scored meanwhile sit in the outbox.
	go registerLoop(ctx, cfg.ServerURL, registration{
		MatchID: *matchID, Home: *home, Away: *away, TotalOvers: *overs,
		Innings: *inningsNo, Batting: *batting,
		Striker: *striker, NonStriker: *nonStriker, Bowler: *bowler, Target: *target,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		os.Stdin.Close()
	}()

	repl(ctx, q, pusher, *matchID, st)

	depth, _ := q.Depth()
	telemetry.Infof("Scorer exiting  queued=%d  attempts=%d  retries=%d",
		depth,
		telemetry.Metrics.PushAttempts.Value(),
		telemetry.Metrics.PushRetries.Value(),
	)
}

// repl reads ball notation from stdin, one delivery per line:
//
//	0..6          runs off the bat
//	wd [n]        wide, plus n completed runs
//	nb [n]        no-ball, n off the bat
//	b n / lb n    byes / leg byes
//	w kind        wicket (bowled, caught, lbw, run_out, stumped, hit_wicket)
//	batter NAME   incoming batter after a wicket
//	bowler NAME   new bowler from the next delivery
//	score         print the scorebook
//	quit          exit
func repl(ctx context.Context, q *queue.Queue, pusher *push.Pusher, matchID string, st innings.State) {
	scanner := bufio.NewScanner(os.Stdin)
	incoming, nextBowler := "", ""

	printScore(st)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "quit", "exit":
			return
		case "score":
			printScore(st)
			continue
		case "batter":
			if len(fields) < 2 {
				fmt.Println("usage: batter NAME")
				continue
			}
			incoming = fields[1]
			continue
		case "bowler":
			if len(fields) < 2 {
				fmt.Println("usage: bowler NAME")
				continue
			}
			nextBowler = fields[1]
			continue
		}

		e, err := parseBall(fields, matchID, st, incoming, nextBowler)
		if err != nil {
			fmt.Printf("?? %v\n", err)
			continue
		}

		next, err := st.Apply(e)
		if err != nil {
			fmt.Printf("?? %v\n", err)
			continue
		}
		st = next
		incoming = ""

		if err := q.Enqueue(e); err != nil {
			telemetry.Errorf("outbox write failed, ball NOT saved: %v", err)
			continue
		}
		pusher.Kick(ctx, matchID)
		printScore(st)

		if st.Phase == innings.Completed {
			fmt.Println("innings complete")
			return
		}
	}
}

func parseBall(fields []string, matchID string, st innings.State, incoming, nextBowler string) (events.BallEvent, error) {
	e := events.NewBallEvent(matchID, st.Innings, st.NextOver(), st.NextBall())
	e.Striker, e.NonStriker, e.Bowler = st.Striker, st.NonStriker, st.Bowler
	if e.Striker == "" {
		e.Striker = incoming
	}
	if e.NonStriker == "" {
		e.NonStriker = incoming
	}
	if nextBowler != "" {
		e.Bowler = nextBowler
	}
	if e.Striker == "" || e.NonStriker == "" {
		return e, fmt.Errorf("wicket fell — name the incoming batter first (batter NAME)")
	}

	optRuns := func(def int) (int, error) {
		if len(fields) < 2 {
			return def, nil
		}
		return strconv.Atoi(fields[1])
	}

	var err error
	switch fields[0] {
	case "0", "1", "2", "3", "4", "5", "6":
		e.Runs, _ = strconv.Atoi(fields[0])
		if len(fields) > 1 {
			e.Shot = fields[1]
		}
	case "wd":
		e.Extra = events.ExtraWide
		e.Runs, err = optRuns(0)
	case "nb":
		e.Extra = events.ExtraNoBall
		e.Runs, err = optRuns(0)
	case "b":
		e.Extra = events.ExtraBye
		e.Runs, err = optRuns(1)
	case "lb":
		e.Extra = events.ExtraLegBye
		e.Runs, err = optRuns(1)
	case "w":
		if len(fields) < 2 {
			return e, fmt.Errorf("usage: w kind")
		}
		e.Wicket = true
		e.WicketKind = events.WicketKind(fields[1])
		e.OutBatter = e.Striker
		if len(fields) > 2 {
			e.OutBatter = fields[2]
		}
	default:
		return e, fmt.Errorf("unrecognized ball %q", fields[0])
	}
	return e, err
}

func printScore(st innings.State) {
	line := fmt.Sprintf("%s %d/%d  (%s ov)", st.BattingTeam, st.Runs, st.Wickets, st.OversBowled())
	if st.Target > 0 {
		line += fmt.Sprintf("  need %d", st.Target+1-st.Runs)
	}
	fmt.Printf("%s  |  %s* %s  |  %s\n", line, st.Striker, st.NonStriker, st.Bowler)
}

type registration struct {
	MatchID    string
	Home       string
	Away       string
	TotalOvers int
	Innings    int
	Batting    string
	Striker    string
	NonStriker string
	Bowler     string
	Target     int
}

// registerLoop creates the match and opens the innings on the server,
// retrying until it succeeds. Both calls are safe to repeat: an existing
// match answers 409 and a re-sent identical opening answers 200. A 422
// means a conflicting opening is already live; retrying cannot fix that,
// so it is treated as terminal rather than spinning the loop.
func registerLoop(ctx context.Context, base string, reg registration) {
	backoff := time.Second
	for {
		err := register(ctx, base, reg)
		if err == nil {
			telemetry.Infof("Registered match %s with %s", reg.MatchID, base)
			return
		}
		telemetry.Warnf("register match: %v — retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func register(ctx context.Context, base string, reg registration) error {
	err := postJSON(ctx, base+"/matches", map[string]any{
		"id": reg.MatchID, "home_team": reg.Home, "away_team": reg.Away,
		"total_overs": reg.TotalOvers,
	}, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return err
	}
	return postJSON(ctx, fmt.Sprintf("%s/matches/%s/innings", base, reg.MatchID), map[string]any{
		"innings": reg.Innings, "batting_team": reg.Batting,
		"striker": reg.Striker, "non_striker": reg.NonStriker,
		"bowler": reg.Bowler, "target": reg.Target,
	}, http.StatusOK, http.StatusUnprocessableEntity)
}

func postJSON(ctx context.Context, url string, body any, okCodes ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, code := range okCodes {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
}
