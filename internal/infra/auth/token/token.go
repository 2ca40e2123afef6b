// Package token issues and verifies the HS256 session tokens handed out at
// sign-in. A token binds one student to one enrolled device for its lifetime.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

var encodedHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("SESSION_TOKEN_SECRET is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

type sessionClaims struct {
	Sub string `json:"sub"`
	Did string `json:"did"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

func (m *Manager) Issue(principal domain.Principal) (string, error) {
	if principal.StudentID == "" || principal.DeviceID == "" {
		return "", errors.New("principal is incomplete")
	}
	now := m.now()
	payload, err := json.Marshal(sessionClaims{
		Sub: principal.StudentID,
		Did: principal.DeviceID,
		Iat: now.Unix(),
		Exp: now.Add(m.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	signingInput := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signingInput + "." + m.sign(signingInput), nil
}

// Verify checks the signature and expiry and returns the bound principal.
// Every failure maps to ErrUnauthorized.
func (m *Manager) Verify(token string) (domain.Principal, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	signingInput := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(m.sign(signingInput)), []byte(parts[2])) {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil || header.Alg != "HS256" {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	claimsBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	var claims sessionClaims
	if err := json.Unmarshal(claimsBytes, &claims); err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if claims.Sub == "" || claims.Did == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if claims.Exp <= 0 || m.now().After(time.Unix(claims.Exp, 0)) {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{StudentID: claims.Sub, DeviceID: claims.Did}, nil
}

func (m *Manager) sign(signingInput string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(signingInput))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
