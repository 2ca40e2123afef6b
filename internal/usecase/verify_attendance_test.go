package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/internal/domain"
	mcrypto "github.com/sandeep89846/MarkMe/internal/infra/crypto"
)

var verifyBase = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

type verifyFixture struct {
	uc       *VerifyAttendance
	records  *fakeRecords
	devices  *fakeDevices
	sessions *fakeSessions
	nonces   *fakeNonces

	priv      *ecdsa.PrivateKey
	principal domain.Principal
}

// newVerifyFixture seeds one enrolled device, one live session at the fixed
// classroom coordinates, and one nonce issued at verifyBase.
func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	f := &verifyFixture{
		records:   newFakeRecords(),
		devices:   newFakeDevices(),
		sessions:  newFakeSessions(),
		nonces:    newFakeNonces(),
		priv:      priv,
		principal: domain.Principal{StudentID: "stu-1", DeviceID: "dev-1"},
	}
	f.devices.devices["dev-1"] = domain.Device{
		DeviceID:  "dev-1",
		StudentID: "stu-1",
		PubkeyPEM: pubPEM,
		Active:    true,
	}
	f.sessions.add(domain.LiveSession{
		ID:        "sess-1",
		SubjectID: "subj-1",
		Lat:       26.25,
		Lon:       78.1698,
		ExpiresAt: verifyBase.Add(time.Hour),
	})
	f.nonces.byValue["nonce-1"] = domain.Nonce{
		Value:     "nonce-1",
		SessionID: "sess-1",
		IssuedAt:  verifyBase,
	}

	f.uc = &VerifyAttendance{
		Records:           f.records,
		Devices:           f.devices,
		Sessions:          f.sessions,
		Nonces:            f.nonces,
		Crypto:            &mcrypto.Service{},
		MaxDistanceMeters: 50,
		MaxNonceAgeMs:     300000,
		Now:               func() time.Time { return verifyBase.Add(time.Minute) },
		Logger:            zerolog.Nop(),
	}
	return f
}

// claim returns a claim that passes every pipeline stage as seeded.
func (f *verifyFixture) claim() domain.AttendanceClaim {
	return domain.AttendanceClaim{
		TsClient:       verifyBase.Add(30 * time.Second).Format("2006-01-02T15:04:05.000Z07:00"),
		DeviceID:       "dev-1",
		SessionID:      "sess-1",
		Nonce:          "nonce-1",
		Lat:            26.2501,
		Lon:            78.1698,
		IdempotencyKey: "key-1",
	}
}

func (f *verifyFixture) sign(t *testing.T, claim domain.AttendanceClaim) string {
	t.Helper()
	canonical, err := mcrypto.Canonicalize(claim.ToMap())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	digest := sha256.Sum256(canonical)
	sig, err := ecdsa.SignASN1(rand.Reader, f.priv, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func (f *verifyFixture) event(t *testing.T, claim domain.AttendanceClaim) BatchEvent {
	t.Helper()
	return BatchEvent{Attendance: claim.ToMap(), StudentSig: f.sign(t, claim)}
}

func (f *verifyFixture) run(t *testing.T, events ...BatchEvent) []domain.VerifyResult {
	t.Helper()
	return f.uc.ExecuteBatch(context.Background(), f.principal, events)
}

func assertStatus(t *testing.T, got domain.VerifyResult, want domain.ResultStatus) {
	t.Helper()
	if got.Status != want {
		t.Fatalf("status = %q (metadata %q), want %q", got.Status, got.Metadata, want)
	}
}

func TestVerifyHappyPath(t *testing.T) {
	f := newVerifyFixture(t)
	results := f.run(t, f.event(t, f.claim()))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	assertStatus(t, results[0], domain.StatusOK)
	if results[0].IdempotencyKey != "key-1" {
		t.Fatalf("idempotency key = %q", results[0].IdempotencyKey)
	}
	rec, ok := f.records.byKey["key-1"]
	if !ok {
		t.Fatal("record was not persisted")
	}
	if rec.Status != domain.RecordStatusVerified || rec.SessionID != "sess-1" || rec.StudentID != "stu-1" {
		t.Fatalf("persisted record = %+v", rec)
	}
}

func TestVerifyInvalidPayload(t *testing.T) {
	f := newVerifyFixture(t)

	results := f.run(t, BatchEvent{Attendance: nil, StudentSig: "sig"})
	assertStatus(t, results[0], domain.StatusInvalidPayload)

	claim := f.claim()
	results = f.run(t, BatchEvent{Attendance: claim.ToMap(), StudentSig: ""})
	assertStatus(t, results[0], domain.StatusInvalidPayload)

	claim.IdempotencyKey = ""
	results = f.run(t, f.event(t, claim))
	assertStatus(t, results[0], domain.StatusInvalidPayload)
}

func TestVerifyReplayShortCircuits(t *testing.T) {
	f := newVerifyFixture(t)
	f.records.byKey["key-1"] = domain.AttendanceRecord{
		IdempotencyKey: "key-1",
		StudentID:      "stu-1",
		SessionID:      "sess-1",
		Status:         domain.RecordStatusVerified,
	}

	// Replay answers before any other check runs: even a claim that would
	// now fail device binding comes back ok.
	claim := f.claim()
	claim.DeviceID = "dev-other"
	results := f.run(t, BatchEvent{Attendance: claim.ToMap(), StudentSig: "not-even-base64"})
	assertStatus(t, results[0], domain.StatusOK)
}

func TestVerifyDeviceMismatch(t *testing.T) {
	f := newVerifyFixture(t)
	claim := f.claim()
	claim.DeviceID = "dev-2"
	results := f.run(t, f.event(t, claim))
	assertStatus(t, results[0], domain.StatusDeviceMismatch)
}

func TestVerifyUnauthorizedDevice(t *testing.T) {
	f := newVerifyFixture(t)

	t.Run("unknown", func(t *testing.T) {
		delete(f.devices.devices, "dev-1")
		results := f.run(t, f.event(t, f.claim()))
		assertStatus(t, results[0], domain.StatusUnauthorizedDev)
	})

	t.Run("inactive", func(t *testing.T) {
		f = newVerifyFixture(t)
		dev := f.devices.devices["dev-1"]
		dev.Active = false
		f.devices.devices["dev-1"] = dev
		results := f.run(t, f.event(t, f.claim()))
		assertStatus(t, results[0], domain.StatusUnauthorizedDev)
	})

	t.Run("bound to another student", func(t *testing.T) {
		f = newVerifyFixture(t)
		dev := f.devices.devices["dev-1"]
		dev.StudentID = "stu-2"
		f.devices.devices["dev-1"] = dev
		results := f.run(t, f.event(t, f.claim()))
		assertStatus(t, results[0], domain.StatusUnauthorizedDev)
	})
}

func TestVerifyBadSignature(t *testing.T) {
	f := newVerifyFixture(t)

	// Signature over a claim whose payload was altered after signing.
	claim := f.claim()
	sig := f.sign(t, claim)
	tampered := claim
	tampered.Lat = 26.2502
	results := f.run(t, BatchEvent{Attendance: tampered.ToMap(), StudentSig: sig})
	assertStatus(t, results[0], domain.StatusBadSignature)

	results = f.run(t, BatchEvent{Attendance: claim.ToMap(), StudentSig: "!!not-base64!!"})
	assertStatus(t, results[0], domain.StatusBadSignature)
}

func TestVerifyPriorSuccessUnderDifferentKey(t *testing.T) {
	f := newVerifyFixture(t)
	f.records.byKey["key-old"] = domain.AttendanceRecord{
		IdempotencyKey: "key-old",
		StudentID:      "stu-1",
		SessionID:      "sess-1",
		Status:         domain.RecordStatusVerified,
	}

	results := f.run(t, f.event(t, f.claim()))
	assertStatus(t, results[0], domain.StatusOK)
	if _, ok := f.records.byKey["key-1"]; ok {
		t.Fatal("a second record was persisted for the same session")
	}
}

func TestVerifyUnknownSession(t *testing.T) {
	f := newVerifyFixture(t)
	claim := f.claim()
	claim.SessionID = "sess-missing"
	results := f.run(t, f.event(t, claim))
	assertStatus(t, results[0], domain.StatusUnknownSession)
}

func TestVerifyNonceMissing(t *testing.T) {
	f := newVerifyFixture(t)

	claim := f.claim()
	claim.Nonce = "nonce-missing"
	results := f.run(t, f.event(t, claim))
	assertStatus(t, results[0], domain.StatusNonceMissing)

	// A real nonce bound to a different session is as good as missing.
	f.nonces.byValue["nonce-other"] = domain.Nonce{
		Value:     "nonce-other",
		SessionID: "sess-2",
		IssuedAt:  verifyBase,
	}
	claim = f.claim()
	claim.Nonce = "nonce-other"
	results = f.run(t, f.event(t, claim))
	assertStatus(t, results[0], domain.StatusNonceMissing)
}

func TestVerifyFreshnessWindow(t *testing.T) {
	f := newVerifyFixture(t)

	cases := []struct {
		name   string
		offset time.Duration
		want   domain.ResultStatus
	}{
		{"well inside", 30 * time.Second, domain.StatusOK},
		{"exactly at bound", 300000 * time.Millisecond, domain.StatusOK},
		{"one ms past", 300001 * time.Millisecond, domain.StatusNonceTimeMismatch},
		{"claim before nonce, inside", -200 * time.Second, domain.StatusOK},
		{"claim before nonce, past", -301 * time.Second, domain.StatusNonceTimeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newVerifyFixture(t)
			claim := f.claim()
			claim.TsClient = verifyBase.Add(tc.offset).Format("2006-01-02T15:04:05.000Z07:00")
			claim.IdempotencyKey = "key-" + tc.name
			results := f.run(t, f.event(t, claim))
			assertStatus(t, results[0], tc.want)
		})
	}

	t.Run("unparseable timestamp", func(t *testing.T) {
		claim := f.claim()
		claim.TsClient = "yesterday around nine"
		results := f.run(t, f.event(t, claim))
		assertStatus(t, results[0], domain.StatusNonceTimeMismatch)
	})
}

func TestVerifyGeofence(t *testing.T) {
	t.Run("inside radius", func(t *testing.T) {
		// ~11m north of the session point.
		f := newVerifyFixture(t)
		results := f.run(t, f.event(t, f.claim()))
		assertStatus(t, results[0], domain.StatusOK)
	})

	t.Run("far outside with rounded distance", func(t *testing.T) {
		f := newVerifyFixture(t)
		claim := f.claim()
		claim.Lat = 26.26 // ~1112m north
		results := f.run(t, f.event(t, claim))
		assertStatus(t, results[0], domain.StatusLocationMismatch)
		if results[0].Metadata != "Distance was 1112m." {
			t.Fatalf("metadata = %q", results[0].Metadata)
		}
	})

	t.Run("radius bound is inclusive", func(t *testing.T) {
		f := newVerifyFixture(t)
		claim := f.claim()
		d := distanceMeters(26.25, 78.1698, claim.Lat, claim.Lon)

		f.uc.MaxDistanceMeters = d
		results := f.run(t, f.event(t, claim))
		assertStatus(t, results[0], domain.StatusOK)

		f = newVerifyFixture(t)
		f.uc.MaxDistanceMeters = d - 0.5
		results = f.run(t, f.event(t, claim))
		assertStatus(t, results[0], domain.StatusLocationMismatch)
	})
}

func TestVerifyDuplicateCreateRaceResolvesOK(t *testing.T) {
	f := newVerifyFixture(t)

	// The insert loses the race: the duplicate-key failure surfaces just as
	// the winner's row becomes visible, and the re-read answers ok.
	f.records.createHook = func(rec domain.AttendanceRecord) error {
		f.records.byKey[rec.IdempotencyKey] = domain.AttendanceRecord{
			IdempotencyKey: rec.IdempotencyKey,
			StudentID:      rec.StudentID,
			SessionID:      rec.SessionID,
			Status:         domain.RecordStatusVerified,
		}
		return domain.ErrDuplicateRecord
	}

	results := f.run(t, f.event(t, f.claim()))
	assertStatus(t, results[0], domain.StatusOK)
}

func TestVerifyServerErrorOnStoreFailure(t *testing.T) {
	f := newVerifyFixture(t)
	f.records.getErr = errors.New("connection reset")
	results := f.run(t, f.event(t, f.claim()))
	assertStatus(t, results[0], domain.StatusServerError)
}

func TestVerifyBatchKeepsOrderAndIsolation(t *testing.T) {
	f := newVerifyFixture(t)

	good := f.claim()
	bad := f.claim()
	bad.IdempotencyKey = "key-2"
	bad.SessionID = "sess-missing"
	good2 := f.claim()
	good2.IdempotencyKey = "key-3"

	results := f.run(t, f.event(t, good), f.event(t, bad), f.event(t, good2))
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	assertStatus(t, results[0], domain.StatusOK)
	assertStatus(t, results[1], domain.StatusUnknownSession)
	// Same student and session already verified by the first event.
	assertStatus(t, results[2], domain.StatusOK)
	if results[1].IdempotencyKey != "key-2" {
		t.Fatalf("results out of order: %+v", results)
	}
}
