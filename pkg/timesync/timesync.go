// Package timesync keeps a server-anchored clock so claim timestamps stay
// inside the server's freshness window even when the device clock drifts.
package timesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Estimator tracks the offset between the local clock and the server clock.
// A zero Estimator is usable and reports local time until the first probe.
type Estimator struct {
	baseURL string
	client  *http.Client
	now     func() time.Time

	// offset is server minus local, in nanoseconds.
	offset atomic.Int64
	synced atomic.Bool
}

// New builds an Estimator probing baseURL's /api/time endpoint.
func New(baseURL string, client *http.Client) *Estimator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Estimator{baseURL: baseURL, client: client, now: time.Now}
}

type timeResponse struct {
	UTC string `json:"utc"`
}

// Probe fetches the server time and updates the offset, compensating for
// network latency with half the round trip. A failed probe keeps the previous
// offset so a flaky network never zeroes out a good estimate.
func (e *Estimator) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/time", nil)
	if err != nil {
		return fmt.Errorf("build time request: %w", err)
	}
	sent := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe server time: %w", err)
	}
	defer resp.Body.Close()
	received := e.now()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe server time: unexpected status %d", resp.StatusCode)
	}
	var body timeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode server time: %w", err)
	}
	serverTime, err := time.Parse(time.RFC3339, body.UTC)
	if err != nil {
		return fmt.Errorf("parse server time: %w", err)
	}

	rtt := received.Sub(sent)
	if rtt < 0 {
		return errors.New("probe server time: clock went backwards during probe")
	}
	// The server stamped its response roughly mid-flight.
	estimatedLocal := sent.Add(rtt / 2)
	e.offset.Store(int64(serverTime.Sub(estimatedLocal)))
	e.synced.Store(true)
	return nil
}

// Now returns the best estimate of current server time, in UTC.
func (e *Estimator) Now() time.Time {
	return e.now().Add(time.Duration(e.offset.Load())).UTC()
}

// NowISO formats Now in the wire timestamp layout.
func (e *Estimator) NowISO() string {
	return e.Now().Format(isoMillis)
}

// Offset reports the current server-minus-local estimate.
func (e *Estimator) Offset() time.Duration {
	return time.Duration(e.offset.Load())
}

// Synced reports whether at least one probe has succeeded.
func (e *Estimator) Synced() bool {
	return e.synced.Load()
}
