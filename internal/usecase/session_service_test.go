package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

// Monday 09:15 IST.
var sessionNow = time.Date(2026, 3, 2, 9, 15, 0, 0, time.FixedZone("IST", 5*3600+1800))

func newSessionService() (*SessionService, *fakeSessions, *fakeTimetable, *fakeNonces) {
	sessions := newFakeSessions()
	nonces := newFakeNonces()
	students := newFakeStudents()
	students.byID["stu-1"] = domain.Student{ID: "stu-1", Email: "s1@college.edu", BatchID: "batch-1"}
	timetable := &fakeTimetable{
		entry: &domain.TimetableEntry{
			ID:        "tt-1",
			BatchID:   "batch-1",
			SubjectID: "subj-1",
			DayOfWeek: 1,
			StartTime: "09:00",
			EndTime:   "10:00",
			Lat:       26.25,
			Lon:       78.1698,
			Subject:   domain.Subject{ID: "subj-1", Code: "CS301", Name: "Operating Systems"},
		},
	}
	svc := &SessionService{
		Students:             students,
		Timetable:            timetable,
		Sessions:             sessions,
		Nonces:               nonces,
		Location:             sessionNow.Location(),
		QRRotationIntervalMs: 15000,
		Now:                  func() time.Time { return sessionNow },
	}
	return svc, sessions, timetable, nonces
}

func TestCurrentForStudentCreatesSession(t *testing.T) {
	svc, sessions, _, _ := newSessionService()

	info, err := svc.CurrentForStudent(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("CurrentForStudent: %v", err)
	}
	if info.ClassName != "Operating Systems" {
		t.Fatalf("class name = %q", info.ClassName)
	}
	if info.Lat != 26.25 || info.Lon != 78.1698 {
		t.Fatalf("session coordinates = %v,%v", info.Lat, info.Lon)
	}
	if info.QRRotationIntervalMs != 15000 {
		t.Fatalf("rotation interval = %d", info.QRRotationIntervalMs)
	}

	sess, ok := sessions.byID[info.SessionID]
	if !ok {
		t.Fatal("session was not persisted")
	}
	// Expiry is the deterministic slot end, 10:00 local.
	wantExpiry := time.Date(2026, 3, 2, 10, 0, 0, 0, sessionNow.Location()).UTC()
	if !sess.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", sess.ExpiresAt, wantExpiry)
	}
}

func TestCurrentForStudentReusesLiveSession(t *testing.T) {
	svc, sessions, _, _ := newSessionService()

	first, err := svc.CurrentForStudent(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.CurrentForStudent(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("session IDs differ: %q vs %q", first.SessionID, second.SessionID)
	}
	if len(sessions.byID) != 1 {
		t.Fatalf("%d sessions persisted, want 1", len(sessions.byID))
	}
}

func TestCurrentForStudentNoActiveClass(t *testing.T) {
	svc, _, timetable, _ := newSessionService()
	timetable.err = domain.ErrNotFound

	_, err := svc.CurrentForStudent(context.Background(), "stu-1")
	if !errors.Is(err, domain.ErrNoActiveClass) {
		t.Fatalf("err = %v, want ErrNoActiveClass", err)
	}
}

func TestCurrentForStudentUnknownStudent(t *testing.T) {
	svc, _, _, _ := newSessionService()
	_, err := svc.CurrentForStudent(context.Background(), "stu-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// All concurrent callers must end up holding the same session: losers of the
// create race re-read the winner.
func TestGetOrCreateRaceConvergesOnOneSession(t *testing.T) {
	svc, sessions, _, _ := newSessionService()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := svc.CurrentForSubject(context.Background(), "subj-1")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got session %q, caller 0 got %q", i, ids[i], ids[0])
		}
	}
	if len(sessions.byID) != 1 {
		t.Fatalf("%d sessions persisted, want 1", len(sessions.byID))
	}
}

func TestIssueNonce(t *testing.T) {
	svc, sessions, _, nonces := newSessionService()
	sessions.add(domain.LiveSession{ID: "sess-1", SubjectID: "subj-1", ExpiresAt: sessionNow.Add(time.Hour).UTC()})

	nonce, err := svc.IssueNonce(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("IssueNonce: %v", err)
	}
	if nonce.Value == "" || nonce.SessionID != "sess-1" {
		t.Fatalf("nonce = %+v", nonce)
	}
	stored, ok := nonces.byValue[nonce.Value]
	if !ok {
		t.Fatal("nonce was not persisted")
	}
	if !stored.IssuedAt.Equal(sessionNow.UTC()) {
		t.Fatalf("issued at = %v", stored.IssuedAt)
	}

	// Issuing again does not invalidate the first nonce.
	second, err := svc.IssueNonce(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("second IssueNonce: %v", err)
	}
	if second.Value == nonce.Value {
		t.Fatal("nonce values must be unique per issuance")
	}
	if _, ok := nonces.byValue[nonce.Value]; !ok {
		t.Fatal("first nonce disappeared")
	}
}

func TestIssueNonceUnknownSession(t *testing.T) {
	svc, _, _, _ := newSessionService()
	_, err := svc.IssueNonce(context.Background(), "sess-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubjectsForStudent(t *testing.T) {
	svc, _, timetable, _ := newSessionService()
	timetable.subjects = []domain.Subject{
		{ID: "subj-1", Code: "CS301", Name: "Operating Systems"},
		{ID: "subj-2", Code: "CS302", Name: "Databases"},
	}

	subjects, err := svc.SubjectsForStudent(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("SubjectsForStudent: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("got %d subjects, want 2", len(subjects))
	}
}
