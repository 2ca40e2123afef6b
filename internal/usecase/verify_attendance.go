package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

// BatchEvent is one (claim, signature) pair from a client batch submission.
type BatchEvent struct {
	Attendance map[string]any
	StudentSig string
}

// VerifyAttendance runs the attestation pipeline. Checks run in a fixed order
// and the first matching condition decides the outcome; idempotency comes
// before any cryptographic work so retries stay cheap. Outcomes are data, one
// per claim, never errors, so a batch can partially succeed.
type VerifyAttendance struct {
	Records  RecordRepository
	Devices  DeviceRepository
	Sessions SessionRepository
	Nonces   NonceRepository
	Crypto   CryptoService

	MaxDistanceMeters float64
	MaxNonceAgeMs     int64
	Now               func() time.Time
	Logger            zerolog.Logger
}

func (uc *VerifyAttendance) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

// ExecuteBatch verifies each event independently and always returns one result
// per input, aligned by idempotency key.
func (uc *VerifyAttendance) ExecuteBatch(ctx context.Context, principal domain.Principal, events []BatchEvent) []domain.VerifyResult {
	results := make([]domain.VerifyResult, 0, len(events))
	for _, ev := range events {
		results = append(results, uc.verifyOne(ctx, principal, ev))
	}
	return results
}

func (uc *VerifyAttendance) verifyOne(ctx context.Context, principal domain.Principal, ev BatchEvent) domain.VerifyResult {
	claim := domain.ClaimFromMap(ev.Attendance)
	key := claim.IdempotencyKey

	if ev.Attendance == nil || ev.StudentSig == "" || key == "" {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusInvalidPayload}
	}

	// 1. Idempotency replay: an existing record answers without re-verification.
	// Records only ever persist VERIFIED, so the replay answer is ok.
	if prev, err := uc.Records.GetByIdempotencyKey(ctx, key); err == nil && prev != nil {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusOK}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return uc.serverError(key, "idempotency lookup", err)
	}

	// 2. Device binding.
	if claim.DeviceID != principal.DeviceID {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusDeviceMismatch}
	}

	// 3. Device authorization.
	device, err := uc.Devices.GetByID(ctx, principal.DeviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusUnauthorizedDev}
		}
		return uc.serverError(key, "device lookup", err)
	}
	if !device.Active || device.StudentID != principal.StudentID {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusUnauthorizedDev}
	}

	// 4. Signature over the canonical encoding. This is the trust anchor;
	// everything before it is advisory.
	canonical, err := uc.Crypto.CanonicalizeClaim(claim)
	if err != nil {
		return uc.serverError(key, "canonicalize", err)
	}
	if err := uc.Crypto.VerifyClaimSignature(canonical, ev.StudentSig, device.PubkeyPEM); err != nil {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusBadSignature}
	}

	// 5. Prior success for this session under any key: the same logical event
	// resubmitted with a regenerated claim. Success, nothing re-persisted.
	hasVerified, err := uc.Records.HasVerified(ctx, principal.StudentID, claim.SessionID)
	if err != nil {
		return uc.serverError(key, "prior-success lookup", err)
	}
	if hasVerified {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusOK}
	}

	// 6. Session existence.
	session, err := uc.Sessions.GetByID(ctx, claim.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusUnknownSession}
		}
		return uc.serverError(key, "session lookup", err)
	}

	// 7. Nonce existence and session binding.
	nonce, err := uc.Nonces.GetByValue(ctx, claim.Nonce)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusNonceMissing}
		}
		return uc.serverError(key, "nonce lookup", err)
	}
	if nonce.SessionID != session.ID {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusNonceMissing}
	}

	// 8. Freshness window between the client-claimed time and nonce issuance.
	tsClient, err := time.Parse(time.RFC3339, claim.TsClient)
	if err != nil {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusNonceTimeMismatch}
	}
	diff := tsClient.Sub(nonce.IssuedAt)
	if diff < 0 {
		diff = -diff
	}
	if diff.Milliseconds() > uc.MaxNonceAgeMs {
		return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusNonceTimeMismatch}
	}

	// 9. Geofence against the session's registered location.
	distance := distanceMeters(session.Lat, session.Lon, claim.Lat, claim.Lon)
	if distance > uc.MaxDistanceMeters {
		return domain.VerifyResult{
			IdempotencyKey: key,
			Status:         domain.StatusLocationMismatch,
			Metadata:       fmt.Sprintf("Distance was %dm.", int(math.Round(distance))),
		}
	}

	// 10. Persist. A duplicate-key race means a concurrent retry won; reading
	// the winner keeps the response stable instead of failing the caller.
	record := domain.AttendanceRecord{
		IdempotencyKey: key,
		SessionID:      session.ID,
		StudentID:      principal.StudentID,
		DeviceID:       principal.DeviceID,
		Nonce:          claim.Nonce,
		Lat:            claim.Lat,
		Lon:            claim.Lon,
		TsClient:       tsClient,
		SignatureB64:   ev.StudentSig,
		CanonicalBlob:  string(canonical),
		Status:         domain.RecordStatusVerified,
		CreatedAt:      uc.now().UTC(),
	}
	if err := uc.Records.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateRecord) {
			if prev, readErr := uc.Records.GetByIdempotencyKey(ctx, key); readErr == nil && prev != nil {
				return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusOK}
			}
		}
		return uc.serverError(key, "persist record", err)
	}
	return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusOK}
}

func (uc *VerifyAttendance) serverError(key, stage string, err error) domain.VerifyResult {
	uc.Logger.Error().Err(err).Str("idempotency_key", key).Str("stage", stage).
		Msg("attendance verification failed")
	return domain.VerifyResult{IdempotencyKey: key, Status: domain.StatusServerError}
}
