package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/sandeep89846/MarkMe/internal/domain"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrBadSignature     = errors.New("signature verification failed")
)

// Service verifies device signatures over canonically encoded claims.
// Devices sign with hardware-backed P-256 keys using SHA-256 digests; the
// signature arrives base64-encoded in ASN.1 DER form.
type Service struct{}

func (s *Service) CanonicalizeClaim(claim domain.AttendanceClaim) ([]byte, error) {
	return Canonicalize(claim.ToMap())
}

func (s *Service) ParsePublicKeyPEM(pubkeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pubkeyPEM))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return key, nil
}

// VerifyClaimSignature checks sigB64 over data against the device's registered
// PEM public key. Malformed signature bytes, a wrong key, and a tampered
// payload are deliberately indistinguishable: the caller maps any failure to
// the single bad_signature outcome.
func (s *Service) VerifyClaimSignature(data []byte, sigB64 string, pubkeyPEM string) error {
	key, err := s.ParsePublicKeyPEM(pubkeyPEM)
	if err != nil {
		return ErrBadSignature
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ErrBadSignature
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(key, digest[:], sig) {
		return ErrBadSignature
	}
	return nil
}
