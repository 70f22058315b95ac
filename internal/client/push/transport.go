package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stumpline/cricket-live/internal/events"
)

// HTTPTransport pushes ball events to the scoring server's ingest
// endpoint. Any response other than a decoded ack is reported as an
// error so the caller retries; the server's idempotent ingestion makes
// the retry safe.
type HTTPTransport struct {
	base   string
	client *http.Client
}

func NewHTTPTransport(base string) *HTTPTransport {
	return &HTTPTransport{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *HTTPTransport) Push(ctx context.Context, e events.BallEvent) (events.Ack, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return events.Ack{}, fmt.Errorf("marshal ball event: %w", err)
	}

	url := fmt.Sprintf("%s/matches/%s/balls", t.base, e.MatchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return events.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return events.Ack{}, fmt.Errorf("push %s: %w", e.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return events.Ack{}, fmt.Errorf("push %s: server returned %d", e.ID, resp.StatusCode)
	}

	var ack events.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return events.Ack{}, fmt.Errorf("decode ack for %s: %w", e.ID, err)
	}
	return ack, nil
}
