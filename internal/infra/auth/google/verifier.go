// Package google verifies Google-issued ID tokens against the published JWKS.
package google

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sandeep89846/MarkMe/internal/config"
	"github.com/sandeep89846/MarkMe/internal/domain"
)

const defaultHTTPTimeout = 5 * time.Second

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

type Verifier struct {
	clientID  string
	clockSkew time.Duration
	now       func() time.Time
	jwks      *jwksCache
}

type Option func(*Verifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.jwks.httpClient = client
		}
	}
}

func NewVerifier(cfg config.Config, opts ...Option) (*Verifier, error) {
	clientID := strings.TrimSpace(cfg.GoogleClientID)
	if clientID == "" {
		return nil, errors.New("GOOGLE_CLIENT_ID is required")
	}
	jwksURL := strings.TrimSpace(cfg.GoogleJWKSURL)
	if jwksURL == "" {
		return nil, errors.New("GOOGLE_JWKS_URL is required")
	}
	v := &Verifier{
		clientID:  clientID,
		clockSkew: 30 * time.Second,
		now:       time.Now,
		jwks:      newJWKSCache(jwksURL, &http.Client{Timeout: defaultHTTPTimeout}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the ID token's RS256 signature and the issuer, audience,
// expiry, and email-verification claims, and returns the asserted identity.
// Any failure collapses to ErrUnauthorized; callers get no oracle for which
// check rejected the token.
func (v *Verifier) Verify(ctx context.Context, idToken string) (domain.IdentityAssertion, error) {
	header, claims, signingInput, signature, err := parseJWT(strings.TrimSpace(idToken))
	if err != nil {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}
	if alg, _ := header["alg"].(string); alg != "RS256" {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}

	kid, _ := header["kid"].(string)
	pubKey, err := v.jwks.key(ctx, kid)
	if err != nil {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}
	digest := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, digest[:], signature); err != nil {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}

	if err := v.validateClaims(claims); err != nil {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" || email == "" {
		return domain.IdentityAssertion{}, domain.ErrUnauthorized
	}
	return domain.IdentityAssertion{Subject: sub, Email: email, Name: name}, nil
}

func (v *Verifier) validateClaims(claims map[string]any) error {
	iss, _ := claims["iss"].(string)
	issuerOK := false
	for _, want := range googleIssuers {
		if iss == want {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return errors.New("issuer mismatch")
	}
	if !audienceMatches(claims["aud"], v.clientID) {
		return errors.New("audience mismatch")
	}

	exp, ok := numericDate(claims["exp"])
	if !ok {
		return errors.New("exp claim required")
	}
	now := v.now()
	if now.After(exp.Add(v.clockSkew)) {
		return errors.New("token expired")
	}
	if iat, ok := numericDate(claims["iat"]); ok && now.Add(v.clockSkew).Before(iat) {
		return errors.New("token issued in the future")
	}

	switch verified := claims["email_verified"].(type) {
	case bool:
		if !verified {
			return errors.New("email not verified")
		}
	case string:
		if verified != "true" {
			return errors.New("email not verified")
		}
	default:
		return errors.New("email not verified")
	}
	return nil
}

func parseJWT(token string) (map[string]any, map[string]any, string, []byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, "", nil, errors.New("invalid token format")
	}
	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, "", nil, err
	}
	claimsBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, "", nil, err
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, "", nil, err
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, "", nil, err
	}
	var claims map[string]any
	if err := json.Unmarshal(claimsBytes, &claims); err != nil {
		return nil, nil, "", nil, err
	}
	return header, claims, parts[0] + "." + parts[1], signature, nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	default:
		return time.Time{}, false
	}
}

func audienceMatches(raw any, expected string) bool {
	switch v := raw.(type) {
	case string:
		return v == expected
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}
