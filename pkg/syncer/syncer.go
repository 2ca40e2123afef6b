// Package syncer drains the attendance outbox to the server. One cycle picks
// a batch, submits it, and applies the per-claim verdicts: verified claims
// move to history, terminal rejections are parked, and anything the server
// could not judge (or a dead network) stays queued for the next cycle.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/pkg/apiclient"
	"github.com/sandeep89846/MarkMe/pkg/queue"
)

// ErrSyncInProgress means another cycle holds the lock; the caller's work
// will be picked up by that cycle or the next one.
var ErrSyncInProgress = errors.New("sync already in progress")

// Outbox is the slice of the queue store the syncer needs.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]queue.PendingClaim, error)
	MarkSyncing(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
	Complete(ctx context.Context, id string, row queue.HistoryRow) error
}

// Submitter is the one API call the syncer makes.
type Submitter interface {
	AttendanceBatch(ctx context.Context, events []apiclient.BatchEvent) (apiclient.BatchResponse, error)
}

// CycleResult summarizes one drain cycle.
type CycleResult struct {
	Submitted int
	Verified  int
	Rejected  int
	Retryable int
	Err       error
}

type Syncer struct {
	outbox   Outbox
	api      Submitter
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	kick   chan struct{}
	events chan CycleResult
}

// New builds a Syncer draining outbox through api every interval.
func New(outbox Outbox, api Submitter, interval time.Duration, logger zerolog.Logger) *Syncer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		outbox:   outbox,
		api:      api,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
		events:   make(chan CycleResult, 8),
	}
}

// Events delivers one CycleResult per completed cycle. Slow consumers drop
// results rather than stalling the sync loop.
func (s *Syncer) Events() <-chan CycleResult {
	return s.events
}

// Kick requests an immediate cycle from a running loop, coalescing with any
// kick already queued.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drains on a timer until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		result, err := s.SyncOnce(ctx)
		if errors.Is(err, ErrSyncInProgress) {
			continue
		}
		s.emit(result)
	}
}

// SyncOnce runs a single drain cycle. Cycles never overlap; a second caller
// gets ErrSyncInProgress instead of a duplicate upload.
func (s *Syncer) SyncOnce(ctx context.Context) (CycleResult, error) {
	if !s.mu.TryLock() {
		return CycleResult{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	claims, err := s.outbox.Pending(ctx, queue.MaxBatch)
	if err != nil {
		return CycleResult{Err: err}, err
	}
	if len(claims) == 0 {
		return CycleResult{}, nil
	}

	ids := make([]string, 0, len(claims))
	byID := make(map[string]queue.PendingClaim, len(claims))
	events := make([]apiclient.BatchEvent, 0, len(claims))
	for _, claim := range claims {
		var attendance map[string]any
		if err := json.Unmarshal([]byte(claim.Blob), &attendance); err != nil {
			// A corrupt blob can never verify. Park it instead of poisoning
			// every future batch.
			s.logger.Warn().Str("id", claim.ID).Err(err).Msg("dropping corrupt queued claim")
			_ = s.outbox.MarkFailed(ctx, []string{claim.ID})
			continue
		}
		ids = append(ids, claim.ID)
		byID[claim.ID] = claim
		events = append(events, apiclient.BatchEvent{Attendance: attendance, StudentSig: claim.Sig})
	}
	if len(events) == 0 {
		return CycleResult{}, nil
	}

	// Best effort: if this update fails the rows stay PENDING and the worst
	// case is a redundant upload, which the server dedupes by key anyway.
	if err := s.outbox.MarkSyncing(ctx, ids); err != nil {
		s.logger.Warn().Err(err).Msg("mark syncing failed")
	}

	resp, err := s.api.AttendanceBatch(ctx, events)
	if err != nil {
		// Transport failure: every claim stays retryable.
		s.logger.Warn().Int("events", len(events)).Err(err).Msg("attendance batch failed")
		result := CycleResult{Submitted: len(events), Retryable: len(events), Err: err}
		return result, err
	}

	result := CycleResult{Submitted: len(events)}
	judged := make(map[string]bool, len(resp.Results))
	for _, verdict := range resp.Results {
		claim, ok := byID[verdict.ID]
		if !ok {
			continue
		}
		judged[verdict.ID] = true
		switch {
		case verdict.Status == "ok":
			row := queue.HistoryRow{
				ID:        claim.ID,
				SessionID: claim.SessionID,
				ClassName: claim.ClassName,
				Status:    verdict.Status,
				Timestamp: serverTime(resp.ServerTime, s.now),
			}
			if err := s.outbox.Complete(ctx, claim.ID, row); err != nil {
				s.logger.Warn().Str("id", claim.ID).Err(err).Msg("complete failed")
				result.Retryable++
				continue
			}
			result.Verified++
		case retryableStatus(verdict.Status):
			result.Retryable++
		default:
			if err := s.outbox.MarkFailed(ctx, []string{claim.ID}); err != nil {
				s.logger.Warn().Str("id", claim.ID).Err(err).Msg("mark failed failed")
				result.Retryable++
				continue
			}
			s.logger.Info().
				Str("id", claim.ID).
				Str("status", verdict.Status).
				Str("metadata", verdict.Metadata).
				Msg("claim rejected")
			result.Rejected++
		}
	}
	// Claims the server did not mention stay queued.
	for _, id := range ids {
		if !judged[id] {
			result.Retryable++
		}
	}
	return result, nil
}

// retryableStatus marks verdicts the server may change its mind about. All
// other non-ok verdicts are final: the signed claim itself can never become
// valid, so retrying it only wastes a batch slot.
func retryableStatus(status string) bool {
	return status == "server_error"
}

func serverTime(iso string, now func() time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t.UTC()
	}
	return now().UTC()
}

func (s *Syncer) emit(result CycleResult) {
	select {
	case s.events <- result:
	default:
	}
}
