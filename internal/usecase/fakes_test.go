package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

type fakeRecords struct {
	mu      sync.Mutex
	byKey   map[string]domain.AttendanceRecord
	history []domain.HistoryItem

	getErr     error
	createErr  error
	createHook func(domain.AttendanceRecord) error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byKey: make(map[string]domain.AttendanceRecord)}
}

func (f *fakeRecords) GetByIdempotencyKey(_ context.Context, key string) (*domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeRecords) HasVerified(_ context.Context, studentID, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byKey {
		if rec.StudentID == studentID && rec.SessionID == sessionID && rec.Status == domain.RecordStatusVerified {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) Create(_ context.Context, record domain.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.createHook != nil {
		if err := f.createHook(record); err != nil {
			return err
		}
	}
	if _, ok := f.byKey[record.IdempotencyKey]; ok {
		return domain.ErrDuplicateRecord
	}
	f.byKey[record.IdempotencyKey] = record
	return nil
}

func (f *fakeRecords) HistoryForSubject(_ context.Context, _, _ string) ([]domain.HistoryItem, error) {
	return f.history, nil
}

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]domain.Device
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{devices: make(map[string]domain.Device)}
}

func (f *fakeDevices) GetByID(_ context.Context, deviceID string) (*domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.devices[deviceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &dev, nil
}

func (f *fakeDevices) Upsert(_ context.Context, device domain.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[device.DeviceID] = device
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]domain.LiveSession
	seq  int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[string]domain.LiveSession)}
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*domain.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sess, nil
}

func (f *fakeSessions) FindActive(_ context.Context, subjectID string, now time.Time) (*domain.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.byID {
		if sess.SubjectID == subjectID && !sess.ExpiresAt.Before(now) {
			found := sess
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSessions) Create(_ context.Context, session domain.LiveSession) (*domain.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.byID {
		if sess.SubjectID == session.SubjectID && sess.ExpiresAt.Equal(session.ExpiresAt) {
			return nil, domain.ErrSessionConflict
		}
	}
	f.seq++
	if session.ID == "" {
		session.ID = fmt.Sprintf("sess-%d", f.seq)
	}
	f.byID[session.ID] = session
	return &session, nil
}

func (f *fakeSessions) add(sess domain.LiveSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sess.ID] = sess
}

type fakeNonces struct {
	mu      sync.Mutex
	byValue map[string]domain.Nonce
}

func newFakeNonces() *fakeNonces {
	return &fakeNonces{byValue: make(map[string]domain.Nonce)}
}

func (f *fakeNonces) Create(_ context.Context, nonce domain.Nonce) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byValue[nonce.Value] = nonce
	return nil
}

func (f *fakeNonces) GetByValue(_ context.Context, value string) (*domain.Nonce, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nonce, ok := f.byValue[value]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &nonce, nil
}

type fakeStudents struct {
	mu   sync.Mutex
	byID map[string]domain.Student
}

func newFakeStudents() *fakeStudents {
	return &fakeStudents{byID: make(map[string]domain.Student)}
}

func (f *fakeStudents) GetByID(_ context.Context, id string) (*domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &student, nil
}

func (f *fakeStudents) GetByEmail(_ context.Context, email string) (*domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, student := range f.byID {
		if student.Email == email {
			found := student
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStudents) LinkIdentity(_ context.Context, id, googleSub, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	student.GoogleSub = googleSub
	if student.Name == "" {
		student.Name = name
	}
	f.byID[id] = student
	return nil
}

type fakeTimetable struct {
	entry    *domain.TimetableEntry
	err      error
	subjects []domain.Subject
}

func (f *fakeTimetable) FindCurrent(_ context.Context, _ string, _ int, _ string) (*domain.TimetableEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeTimetable) FindCurrentForSubject(_ context.Context, _ string, _ int, _ string) (*domain.TimetableEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeTimetable) SubjectsForBatch(_ context.Context, _ string) ([]domain.Subject, error) {
	return f.subjects, nil
}

type fakeIdentity struct {
	assertion domain.IdentityAssertion
	err       error
}

func (f *fakeIdentity) Verify(_ context.Context, _ string) (domain.IdentityAssertion, error) {
	return f.assertion, f.err
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) Issue(principal domain.Principal) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token:" + principal.StudentID + ":" + principal.DeviceID, nil
}
