package attest

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Canonical renders the claim as the exact byte string the device signs. The
// schema is closed, so the bytewise key order is fixed at compile time:
// device_id, idempotency_key, lat, lon, qrNonce, sess, ts_client. This encoder
// is deliberately implemented from the wire rules rather than shared with the
// server, and both are held to the same golden vectors.
func (c Claim) Canonical() ([]byte, error) {
	lat, err := numberToken(c.Lat)
	if err != nil {
		return nil, err
	}
	lon, err := numberToken(c.Lon)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`{"device_id":`)
	appendString(&b, c.DeviceID)
	b.WriteString(`,"idempotency_key":`)
	appendString(&b, c.IdempotencyKey)
	b.WriteString(`,"lat":`)
	b.WriteString(lat)
	b.WriteString(`,"lon":`)
	b.WriteString(lon)
	b.WriteString(`,"qrNonce":`)
	appendString(&b, c.QRNonce)
	b.WriteString(`,"sess":`)
	appendString(&b, c.SessionID)
	b.WriteString(`,"ts_client":`)
	appendString(&b, c.TsClient)
	b.WriteByte('}')
	return []byte(b.String()), nil
}

const lowerHex = "0123456789abcdef"

func appendString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(lowerHex[r>>4])
			b.WriteByte(lowerHex[r&0x0f])
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// numberToken is the ES6 ToString(number) rendering: positional for exponents
// in [-6, 20], scientific outside, shortest round-tripping digit string.
func numberToken(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("coordinate is not a finite number")
	}
	if f == 0 {
		return "0", nil
	}

	neg := math.Signbit(f)
	sci := strconv.FormatFloat(math.Abs(f), 'e', -1, 64)
	cut := strings.IndexByte(sci, 'e')
	digits := sci[:cut]
	exp, err := strconv.Atoi(sci[cut+1:])
	if err != nil {
		return "", err
	}
	digits = strings.Replace(digits, ".", "", 1)

	var out string
	switch {
	case exp <= -7 || exp >= 21:
		out = digits[:1]
		if len(digits) > 1 {
			out += "." + digits[1:]
		}
		out += "e" + strconv.Itoa(exp)
	case exp+1 >= len(digits):
		out = digits + strings.Repeat("0", exp+1-len(digits))
	case exp < 0:
		out = "0." + strings.Repeat("0", -exp-1) + digits
	default:
		out = digits[:exp+1] + "." + digits[exp+1:]
	}
	if neg {
		out = "-" + out
	}
	return out, nil
}
