// Package keystore holds the device attestation key behind a narrow signing
// capability. On real hardware this is a secure element; here the stand-in is
// a file-backed P-256 key behind the same interface, so callers never learn
// which one they got.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrNoLocalAuth means the device has no screen lock or biometric set up.
	// It is the one failure the user can fix themselves, so it stays distinct.
	ErrNoLocalAuth    = errors.New("no local authentication configured")
	ErrAuthFailed     = errors.New("local authentication failed")
	ErrAuthCancelled  = errors.New("local authentication cancelled")
	ErrKeyUnavailable = errors.New("device key unavailable")
)

// AuthPrompt gates every signature behind an interactive user verification.
type AuthPrompt interface {
	Confirm(ctx context.Context, reason string) error
}

// Signer is the key capability handed to the rest of the client. The private
// key never crosses this boundary; only signatures and the public half do.
type Signer interface {
	HasKey() bool
	Enroll() (pubkeyPEM string, err error)
	Sign(ctx context.Context, data []byte) ([]byte, error)
	PublicKeyPEM() (string, error)
}

const keyFileName = "device_key.pem"

type fileSigner struct {
	path   string
	prompt AuthPrompt
}

// NewFileSigner stores the key under dir. The prompt is mandatory; signing
// without user verification is not a supported mode.
func NewFileSigner(dir string, prompt AuthPrompt) (Signer, error) {
	if prompt == nil {
		return nil, ErrNoLocalAuth
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &fileSigner{path: filepath.Join(dir, keyFileName), prompt: prompt}, nil
}

func (s *fileSigner) HasKey() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Enroll generates a fresh keypair, overwriting any previous one. The old key
// becomes useless immediately; the server only trusts the key registered at
// the next sign-in.
func (s *fileSigner) Enroll() (string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate device key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("encode device key: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(s.path, block, 0o600); err != nil {
		return "", fmt.Errorf("store device key: %w", err)
	}
	return publicPEM(&key.PublicKey)
}

func (s *fileSigner) PublicKeyPEM() (string, error) {
	key, err := s.load()
	if err != nil {
		return "", err
	}
	return publicPEM(&key.PublicKey)
}

// Sign requires a successful interactive confirmation before the key is used.
func (s *fileSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := s.prompt.Confirm(ctx, "Confirm attendance"); err != nil {
		return nil, err
	}
	key, err := s.load()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

func (s *fileSigner) load() (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, ErrKeyUnavailable
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, ErrKeyUnavailable
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrKeyUnavailable
	}
	return key, nil
}

func publicPEM(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
