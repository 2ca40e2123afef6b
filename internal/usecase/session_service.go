package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

// SessionService derives the ephemeral live session from the recurring
// timetable and mints nonces bound to it.
type SessionService struct {
	Students  StudentRepository
	Timetable TimetableRepository
	Sessions  SessionRepository
	Nonces    NonceRepository

	Location             *time.Location
	QRRotationIntervalMs int
	Now                  func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// CurrentForStudent resolves the student's currently scheduled class and lazily
// creates the live session for it.
func (s *SessionService) CurrentForStudent(ctx context.Context, studentID string) (*domain.SessionInfo, error) {
	student, err := s.Students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	localNow := s.now().In(s.location())
	entry, err := s.Timetable.FindCurrent(ctx, student.BatchID, int(localNow.Weekday()), localNow.Format("15:04"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveClass
		}
		return nil, err
	}

	session, err := s.getOrCreate(ctx, entry, localNow)
	if err != nil {
		return nil, err
	}
	return &domain.SessionInfo{
		SessionID:            session.ID,
		ClassName:            entry.Subject.Name,
		Lat:                  session.Lat,
		Lon:                  session.Lon,
		QRRotationIntervalMs: s.QRRotationIntervalMs,
	}, nil
}

// CurrentForSubject is the display-side variant used by the nonce issuer: the
// live session for a subject scheduled right now, created if absent.
func (s *SessionService) CurrentForSubject(ctx context.Context, subjectID string) (*domain.LiveSession, error) {
	localNow := s.now().In(s.location())
	entry, err := s.Timetable.FindCurrentForSubject(ctx, subjectID, int(localNow.Weekday()), localNow.Format("15:04"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveClass
		}
		return nil, err
	}
	return s.getOrCreate(ctx, entry, localNow)
}

// getOrCreate returns the single live session for the entry's subject and
// time window. Two callers may both observe "absent"; the loser's insert
// fails on the uniqueness constraint and the winner's row is re-read, so all
// racers end up holding the same session.
func (s *SessionService) getOrCreate(ctx context.Context, entry *domain.TimetableEntry, localNow time.Time) (*domain.LiveSession, error) {
	nowUTC := localNow.UTC()

	existing, err := s.Sessions.FindActive(ctx, entry.SubjectID, nowUTC)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	created, err := s.Sessions.Create(ctx, domain.LiveSession{
		SubjectID: entry.SubjectID,
		Lat:       entry.Lat,
		Lon:       entry.Lon,
		ExpiresAt: entry.SlotEnd(localNow, s.location()).UTC(),
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, domain.ErrSessionConflict) {
		return nil, err
	}

	winner, err := s.Sessions.FindActive(ctx, entry.SubjectID, nowUTC)
	if err != nil {
		return nil, domain.ErrSessionConflict
	}
	return winner, nil
}

// IssueNonce mints a fresh freshness token bound to the session. Issuing does
// not invalidate prior nonces; the display rotates them to bound the window a
// leaked code stays useful.
func (s *SessionService) IssueNonce(ctx context.Context, sessionID string) (*domain.Nonce, error) {
	if _, err := s.Sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	nonce := domain.Nonce{
		Value:     uuid.NewString(),
		SessionID: sessionID,
		IssuedAt:  s.now().UTC(),
	}
	if err := s.Nonces.Create(ctx, nonce); err != nil {
		return nil, err
	}
	return &nonce, nil
}

// SubjectsForStudent lists the subjects on the student's timetable.
func (s *SessionService) SubjectsForStudent(ctx context.Context, studentID string) ([]domain.Subject, error) {
	student, err := s.Students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.Timetable.SubjectsForBatch(ctx, student.BatchID)
}
