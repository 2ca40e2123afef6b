package domain

import "time"

// Device is one enrolled physical device. The private key never leaves the
// device; the server only ever holds the PEM public key. Deactivating a device
// invalidates future claims without touching its history.
type Device struct {
	DeviceID  string
	StudentID string
	PubkeyPEM string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
