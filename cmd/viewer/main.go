// The viewer follows one match's broadcast feed and prints a running
// score line. Disconnections heal themselves: the client reconnects
// with its last seen sequence number and the server replays the gap.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/stumpline/cricket-live/internal/broadcast"
	"github.com/stumpline/cricket-live/internal/config"
	"github.com/stumpline/cricket-live/internal/core/analytics"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	matchID := flag.String("match", "", "match id (required)")
	flag.Parse()
	if *matchID == "" {
		flag.Usage()
		os.Exit(2)
	}

	bus := events.NewBus()
	byInnings := make(map[int][]events.BallEvent)

	bus.SubscribeMatch(events.EventBallAccepted, *matchID, func(evt events.Event) error {
		ball := evt.Payload.(events.BallEvent)
		byInnings[ball.Innings] = append(byInnings[ball.Innings], ball)
		printBall(ball, byInnings[ball.Innings])
		return nil
	})
	bus.SubscribeMatch(events.EventInningsComplete, *matchID, func(evt events.Event) error {
		ic := evt.Payload.(events.InningsCompleteEvent)
		fmt.Printf("== innings %d complete: %d/%d ==\n", ic.Innings, ic.Runs, ic.Wickets)
		return nil
	})
	bus.SubscribeMatch(events.EventMatchComplete, *matchID, func(evt events.Event) error {
		mc := evt.Payload.(events.MatchCompleteEvent)
		fmt.Printf("== %s ==\n", mc.Result)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := broadcast.NewClient(hostOf(cfg.ServerURL), *matchID, bus)
	go client.ConnectWithRetry(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
	telemetry.Infof("Viewer exiting at seq %d", client.LastSeq())
}

func printBall(ball events.BallEvent, evts []events.BallEvent) {
	runs, wickets := 0, 0
	for _, e := range evts {
		runs += e.TotalRuns()
		if e.Wicket {
			wickets++
		}
	}

	desc := fmt.Sprintf("%d run(s)", ball.Runs)
	switch {
	case ball.Wicket:
		desc = fmt.Sprintf("WICKET %s (%s)", ball.OutBatter, ball.WicketKind)
	case ball.Extra != events.ExtraNone:
		desc = fmt.Sprintf("%s +%d", ball.Extra, ball.Runs)
	case ball.Runs == 4 || ball.Runs == 6:
		desc = fmt.Sprintf("%d! %s", ball.Runs, ball.Shot)
	}

	line := fmt.Sprintf("%d.%d  %s to %s: %s  —  %d/%d", ball.Over, ball.Ball,
		ball.Bowler, ball.Striker, desc, runs, wickets)
	if rr, ok := analytics.RunRate(evts); ok {
		line += fmt.Sprintf("  RR %.2f", rr)
	}
	fmt.Println(line)
}

// hostOf strips the scheme from the configured server URL; the
// broadcast client dials ws:// itself.
func hostOf(serverURL string) string {
	if u, err := url.Parse(serverURL); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(serverURL, "http://")
}
