// Package push drains the scorer's outbox to the scoring server. One
// worker per match pushes strictly in scored order, retries transient
// failures with exponential backoff, and halts on a rejection so the
// scorer can intervene.
package push

import (
	"context"
	"sync"
	"time"

	"github.com/stumpline/cricket-live/internal/client/queue"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
	defaultInterval   = 10 * time.Second
)

// Transport delivers one ball event to the server and returns its ack.
// An error means the delivery outcome is unknown (network fault, server
// down) and the push must be retried; a Rejected ack is a definitive
// refusal.
type Transport interface {
	Push(ctx context.Context, e events.BallEvent) (events.Ack, error)
}

// Pusher owns the per-match drain workers.
type Pusher struct {
	queue     *queue.Queue
	transport Transport

	minBackoff time.Duration
	maxBackoff time.Duration
	interval   time.Duration

	mu      sync.Mutex
	workers map[string]chan struct{}
	wg      sync.WaitGroup
}

func NewPusher(q *queue.Queue, transport Transport, minBackoff, maxBackoff, interval time.Duration) *Pusher {
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Pusher{
		queue:      q,
		transport:  transport,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		interval:   interval,
		workers:    make(map[string]chan struct{}),
	}
}

// Run resumes workers for every match with pending entries and blocks
// until ctx is cancelled. Entries stay in the outbox on shutdown.
func (p *Pusher) Run(ctx context.Context) {
	matches, err := p.queue.Matches()
	if err != nil {
		telemetry.Errorf("push: list pending matches: %v", err)
	}
	for _, id := range matches {
		p.ensureWorker(ctx, id)
	}

	<-ctx.Done()
	p.wg.Wait()
}

// Kick wakes (or starts) the worker for a match. Called after each
// local enqueue and whenever connectivity returns.
func (p *Pusher) Kick(ctx context.Context, matchID string) {
	wake := p.ensureWorker(ctx, matchID)
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (p *Pusher) ensureWorker(ctx context.Context, matchID string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if wake, ok := p.workers[matchID]; ok {
		return wake
	}
	wake := make(chan struct{}, 1)
	p.workers[matchID] = wake
	p.wg.Add(1)
	go p.drain(ctx, matchID, wake)
	return wake
}

// drain pushes a match's pending entries in order. The outbox is the
// source of truth: each pass re-reads it, so an entry acked elsewhere
// or newly enqueued is always handled.
func (p *Pusher) drain(ctx context.Context, matchID string, wake chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	backoff := p.minBackoff
loop:
	for {
		pending, err := p.queue.Pending(matchID)
		if err != nil {
			telemetry.Errorf("push: read outbox for %s: %v", matchID, err)
			pending = nil
		}

	pass:
		for _, e := range pending {
			start := time.Now()
			telemetry.Metrics.PushAttempts.Inc()

			ack, err := p.transport.Push(ctx, e)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				telemetry.Metrics.PushRetries.Inc()
				telemetry.Warnf("push: %s seq candidate %s: %v — retrying in %s", matchID, e.ID, err, backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, p.maxBackoff)
				continue loop
			}

			telemetry.Metrics.AckRoundTrip.Record(time.Since(start))
			backoff = p.minBackoff

			switch {
			case ack.Accepted, ack.Duplicate:
				if err := p.queue.Ack(e.ID); err != nil {
					telemetry.Errorf("push: ack %s: %v", e.ID, err)
				}
			case ack.Rejected:
				telemetry.Warnf("push: %s refused %s: %s", matchID, e.ID, ack.Reason)
				if err := p.queue.MarkRejected(e.ID, ack.Reason); err != nil {
					telemetry.Errorf("push: flag %s: %v", e.ID, err)
				}
				// A refusal usually means the scorer's local record has
				// diverged. Stop the pass; later entries wait for the
				// scorer to sort it out.
				break pass
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}
