// Package queue is the on-device outbox for signed attendance claims. A claim
// is enqueued at scan time and survives restarts; the syncer drains it when
// the network allows. Rows move PENDING -> SYNCING -> VERIFIED or FAILED, and
// SYNCING rows left behind by a crashed upload become eligible again after a
// retry window.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusPending  = "PENDING"
	StatusSyncing  = "SYNCING"
	StatusVerified = "VERIFIED"
	StatusFailed   = "FAILED"
)

// MaxBatch matches the server's per-request event cap.
const MaxBatch = 20

// retryWindow is how long a SYNCING row is considered in flight before it is
// handed out again.
const retryWindow = 2 * time.Minute

const schemaVersion = 1

const schema = `
CREATE TABLE pending_attendance (
	id TEXT PRIMARY KEY,
	blob TEXT NOT NULL,
	sig TEXT NOT NULL,
	class_name TEXT NOT NULL,
	sess TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX idx_pending_status ON pending_attendance (status, updated_at);
CREATE INDEX idx_pending_sess ON pending_attendance (sess);

CREATE TABLE verified_attendance (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	class_name TEXT NOT NULL,
	status TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX idx_verified_session ON verified_attendance (session_id);
`

// ErrSchemaMismatch means the database was written by an incompatible build.
var ErrSchemaMismatch = errors.New("queue database schema version mismatch")

// PendingClaim is one outbox row: the canonical claim bytes plus its
// signature, exactly as they will go on the wire.
type PendingClaim struct {
	ID        string
	Blob      string
	Sig       string
	ClassName string
	SessionID string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryRow is a locally stored verdict for a synced claim.
type HistoryRow struct {
	ID        string
	SessionID string
	ClassName string
	Status    string
	Timestamp time.Time
}

// Store is the sqlite-backed outbox. A single write connection keeps sqlite
// contention out of the picture.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and if needed initializes) the queue database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=1000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) setup() error {
	var existing int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&existing); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	switch {
	case existing == 0:
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		return nil
	case existing != schemaVersion:
		return fmt.Errorf("%w: expected %d, have %d", ErrSchemaMismatch, schemaVersion, existing)
	default:
		return nil
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue stores a signed claim as PENDING. The idempotency key is the
// primary key, so re-scanning the same claim cannot double-enqueue it.
func (s *Store) Enqueue(ctx context.Context, claim PendingClaim) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_attendance (id, blob, sig, class_name, sess, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ID, claim.Blob, claim.Sig, claim.ClassName, claim.SessionID, StatusPending, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue claim %s: %w", claim.ID, err)
	}
	return nil
}

// Pending returns up to limit claims ready for upload: PENDING rows plus
// SYNCING rows that have sat in flight longer than the retry window. Oldest
// first, so the queue drains in scan order.
func (s *Store) Pending(ctx context.Context, limit int) ([]PendingClaim, error) {
	if limit <= 0 || limit > MaxBatch {
		limit = MaxBatch
	}
	cutoff := s.now().Add(-retryWindow).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, blob, sig, class_name, sess, status, created_at, updated_at
		FROM pending_attendance
		WHERE status = ? OR (status = ? AND updated_at < ?)
		ORDER BY created_at ASC
		LIMIT ?`,
		StatusPending, StatusSyncing, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending claims: %w", err)
	}
	defer rows.Close()

	var out []PendingClaim
	for rows.Next() {
		var claim PendingClaim
		var createdAt, updatedAt int64
		if err := rows.Scan(&claim.ID, &claim.Blob, &claim.Sig, &claim.ClassName,
			&claim.SessionID, &claim.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pending claim: %w", err)
		}
		claim.CreatedAt = time.UnixMilli(createdAt).UTC()
		claim.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, claim)
	}
	return out, rows.Err()
}

// MarkSyncing flags claims as in flight so a concurrent drain pass skips them.
func (s *Store) MarkSyncing(ctx context.Context, ids []string) error {
	return s.setStatus(ctx, ids, StatusSyncing)
}

// MarkFailed records a terminal server rejection. The claim stays in the
// table for the user to see but is never retried.
func (s *Store) MarkFailed(ctx context.Context, ids []string) error {
	return s.setStatus(ctx, ids, StatusFailed)
}

func (s *Store) setStatus(ctx context.Context, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now().UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pending_attendance SET status = ?, updated_at = ? WHERE id = ?`,
			status, now, id,
		); err != nil {
			return fmt.Errorf("update claim %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Complete removes a verified claim from the outbox and records its verdict
// in the local history, atomically. A claim is either queued or in history,
// never both and never neither.
func (s *Store) Complete(ctx context.Context, id string, row HistoryRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_attendance WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dequeue claim %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO verified_attendance (id, session_id, class_name, status, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.SessionID, row.ClassName, row.Status, row.Timestamp.UnixMilli(),
	); err != nil {
		return fmt.Errorf("record history for %s: %w", id, err)
	}
	return tx.Commit()
}

// History returns local verdicts, newest first.
func (s *Store) History(ctx context.Context) ([]HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, class_name, status, timestamp
		FROM verified_attendance
		ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var row HistoryRow
		var ts int64
		if err := rows.Scan(&row.ID, &row.SessionID, &row.ClassName, &row.Status, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		row.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// Counts reports how many outbox rows sit in each state.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM pending_attendance GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// HasForSession reports whether a claim for the session is already queued or
// already verified, so the scanner can refuse a duplicate scan up front.
func (s *Store) HasForSession(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM pending_attendance WHERE sess = ?)
		     + (SELECT COUNT(*) FROM verified_attendance WHERE session_id = ? AND status = 'ok')`,
		sessionID, sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	return n > 0, nil
}
