package domain

import "time"

// LiveSession is the ephemeral "class X is in progress" record. At most one
// non-expired session exists per subject; the store's uniqueness enforcement is
// what guarantees that under concurrent creation.
type LiveSession struct {
	ID        string
	SubjectID string
	Lat       float64
	Lon       float64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Nonce is a single-issuance freshness token bound to one live session. Nonces
// are not consumed on use; recency plus record idempotency bound their value.
type Nonce struct {
	Value     string
	SessionID string
	IssuedAt  time.Time
}

// SessionInfo is what the session query returns to an authenticated student.
type SessionInfo struct {
	SessionID            string
	ClassName            string
	Lat                  float64
	Lon                  float64
	QRRotationIntervalMs int
}
