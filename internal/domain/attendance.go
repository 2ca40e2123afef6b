package domain

import "time"

// ResultStatus is a per-claim verification outcome. Outcomes are data, never
// errors: a batch response carries one status per submitted claim.
type ResultStatus string

const (
	StatusOK                ResultStatus = "ok"
	StatusInvalidPayload    ResultStatus = "invalid_payload"
	StatusDeviceMismatch    ResultStatus = "device_mismatch"
	StatusUnauthorizedDev   ResultStatus = "unauthorized_device"
	StatusBadSignature      ResultStatus = "bad_signature"
	StatusUnknownSession    ResultStatus = "unknown_session"
	StatusNonceMissing      ResultStatus = "nonce_missing"
	StatusNonceTimeMismatch ResultStatus = "nonce_time_mismatch"
	StatusLocationMismatch  ResultStatus = "location_mismatch"
	StatusServerError       ResultStatus = "server_error"
)

// VerifyResult is the outcome for one claim within a batch, aligned to the
// claim by its idempotency key.
type VerifyResult struct {
	IdempotencyKey string
	Status         ResultStatus
	Metadata       string
}

// RecordStatusVerified is the only status a persisted record can hold; records
// are append-only and never mutated.
const RecordStatusVerified = "VERIFIED"

// AttendanceRecord is the persisted attestation. The idempotency key is the
// primary key, which makes persistence exactly-once under retransmission.
type AttendanceRecord struct {
	IdempotencyKey string
	SessionID      string
	StudentID      string
	DeviceID       string
	Nonce          string
	Lat            float64
	Lon            float64
	TsClient       time.Time
	SignatureB64   string
	CanonicalBlob  string
	Status         string
	CreatedAt      time.Time
}
