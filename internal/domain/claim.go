package domain

// Claim field names on the wire. The spelling is shared with every client
// implementation; changing any of them breaks every signature.
const (
	FieldTsClient       = "ts_client"
	FieldDeviceID       = "device_id"
	FieldSession        = "sess"
	FieldNonce          = "qrNonce"
	FieldLat            = "lat"
	FieldLon            = "lon"
	FieldIdempotencyKey = "idempotency_key"
)

// AttendanceClaim is the closed claim schema. The canonical byte encoding is a
// pure function of these seven fields.
type AttendanceClaim struct {
	TsClient       string
	DeviceID       string
	SessionID      string
	Nonce          string
	Lat            float64
	Lon            float64
	IdempotencyKey string
}

// ToMap renders the claim as the flat wire mapping fed to the canonical encoder.
func (c AttendanceClaim) ToMap() map[string]any {
	return map[string]any{
		FieldTsClient:       c.TsClient,
		FieldDeviceID:       c.DeviceID,
		FieldSession:        c.SessionID,
		FieldNonce:          c.Nonce,
		FieldLat:            c.Lat,
		FieldLon:            c.Lon,
		FieldIdempotencyKey: c.IdempotencyKey,
	}
}

// ClaimFromMap extracts the closed schema from a decoded JSON object. Unknown
// keys are dropped; missing strings come back empty and fail later pipeline
// stages rather than here.
func ClaimFromMap(m map[string]any) AttendanceClaim {
	return AttendanceClaim{
		TsClient:       stringField(m, FieldTsClient),
		DeviceID:       stringField(m, FieldDeviceID),
		SessionID:      stringField(m, FieldSession),
		Nonce:          stringField(m, FieldNonce),
		Lat:            floatField(m, FieldLat),
		Lon:            floatField(m, FieldLon),
		IdempotencyKey: stringField(m, FieldIdempotencyKey),
	}
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// SignedAttestation pairs a claim with the device signature over its canonical
// encoding. Immutable once built.
type SignedAttestation struct {
	Claim        AttendanceClaim
	SignatureB64 string
}
