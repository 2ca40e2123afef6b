package usecase

import (
	"context"
	"time"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

// EnrollmentService handles the combined sign-in plus device enrollment flow.
// Identity comes from a Google ID token; the device key the client generated
// in hardware is registered (or re-registered) in the same call.
type EnrollmentService struct {
	Students StudentRepository
	Devices  DeviceRepository
	Crypto   CryptoService
	Identity IdentityVerifier
	Tokens   TokenIssuer

	Now func() time.Time
}

func (s *EnrollmentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type SignInResult struct {
	Token   string
	Student domain.Student
}

// SignIn verifies the ID token, matches the asserted email against the roster,
// registers the device public key, and issues a session token bound to both
// the student and the device. Enrolling an existing device ID rotates its key;
// the old key can no longer produce accepted claims.
func (s *EnrollmentService) SignIn(ctx context.Context, idToken, deviceID, pubkeyPEM string) (*SignInResult, error) {
	if idToken == "" || deviceID == "" || pubkeyPEM == "" {
		return nil, domain.ErrInvalidPayload
	}

	assertion, err := s.Identity.Verify(ctx, idToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	student, err := s.Students.GetByEmail(ctx, assertion.Email)
	if err != nil {
		return nil, domain.ErrNotOnRoster
	}
	if err := s.Students.LinkIdentity(ctx, student.ID, assertion.Subject, assertion.Name); err != nil {
		return nil, err
	}

	if _, err := s.Crypto.ParsePublicKeyPEM(pubkeyPEM); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	if err := s.Devices.Upsert(ctx, domain.Device{
		DeviceID:  deviceID,
		StudentID: student.ID,
		PubkeyPEM: pubkeyPEM,
		Active:    true,
		UpdatedAt: s.now().UTC(),
	}); err != nil {
		return nil, err
	}

	token, err := s.Tokens.Issue(domain.Principal{StudentID: student.ID, DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	return &SignInResult{Token: token, Student: *student}, nil
}
