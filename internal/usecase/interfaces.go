package usecase

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type RecordRepository interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.AttendanceRecord, error)
	HasVerified(ctx context.Context, studentID, sessionID string) (bool, error)
	Create(ctx context.Context, record domain.AttendanceRecord) error
	HistoryForSubject(ctx context.Context, studentID, subjectID string) ([]domain.HistoryItem, error)
}

type DeviceRepository interface {
	GetByID(ctx context.Context, deviceID string) (*domain.Device, error)
	Upsert(ctx context.Context, device domain.Device) error
}

type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.LiveSession, error)
	FindActive(ctx context.Context, subjectID string, now time.Time) (*domain.LiveSession, error)
	Create(ctx context.Context, session domain.LiveSession) (*domain.LiveSession, error)
}

type NonceRepository interface {
	Create(ctx context.Context, nonce domain.Nonce) error
	GetByValue(ctx context.Context, value string) (*domain.Nonce, error)
}

type StudentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Student, error)
	GetByEmail(ctx context.Context, email string) (*domain.Student, error)
	LinkIdentity(ctx context.Context, id, googleSub, name string) error
}

type TimetableRepository interface {
	FindCurrent(ctx context.Context, batchID string, dayOfWeek int, localTime string) (*domain.TimetableEntry, error)
	FindCurrentForSubject(ctx context.Context, subjectID string, dayOfWeek int, localTime string) (*domain.TimetableEntry, error)
	SubjectsForBatch(ctx context.Context, batchID string) ([]domain.Subject, error)
}

type CryptoService interface {
	CanonicalizeClaim(claim domain.AttendanceClaim) ([]byte, error)
	VerifyClaimSignature(data []byte, sigB64 string, pubkeyPEM string) error
	ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error)
}

type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (domain.IdentityAssertion, error)
}

type TokenIssuer interface {
	Issue(principal domain.Principal) (string, error)
}
