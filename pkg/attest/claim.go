// Package attest builds and canonically encodes attendance claims on the
// client side. The encoding must match the server's byte for byte; a one-byte
// difference invalidates every signature.
package attest

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Claim is the closed attestation schema. All seven fields are always present
// in the canonical encoding; there is no optionality to negotiate.
type Claim struct {
	TsClient       string  `json:"ts_client"`
	DeviceID       string  `json:"device_id"`
	SessionID      string  `json:"sess"`
	QRNonce        string  `json:"qrNonce"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// NewClaim stamps a fresh idempotency key. The key is generated once at claim
// creation and survives retries; regenerating it would forfeit exactly-once
// persistence.
func NewClaim(ts, deviceID, sessionID, qrNonce string, lat, lon float64) Claim {
	return Claim{
		TsClient:       ts,
		DeviceID:       deviceID,
		SessionID:      sessionID,
		QRNonce:        qrNonce,
		Lat:            lat,
		Lon:            lon,
		IdempotencyKey: uuid.NewString(),
	}
}

// QRPayload is the JSON carried by the rotating QR code.
type QRPayload struct {
	QRNonce   string `json:"qrNonce"`
	SessionID string `json:"sessionId"`
	TS        string `json:"ts"`
}

var ErrInvalidQRPayload = errors.New("invalid qr payload")

// ParseQRPayload decodes a scanned QR code and rejects structurally valid JSON
// that is not a session QR.
func ParseQRPayload(raw []byte) (QRPayload, error) {
	var payload QRPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return QRPayload{}, ErrInvalidQRPayload
	}
	if payload.QRNonce == "" || payload.SessionID == "" {
		return QRPayload{}, ErrInvalidQRPayload
	}
	return payload, nil
}

// ISOTime renders t the way claims carry timestamps: UTC with millisecond
// precision and a Z suffix.
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
