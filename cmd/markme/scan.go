package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/sandeep89846/MarkMe/pkg/attest"
	"github.com/sandeep89846/MarkMe/pkg/queue"
	"github.com/sandeep89846/MarkMe/pkg/timesync"
)

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var qrJSON string
	var lat, lon float64
	var assumeYes bool
	var server string
	var dataDir string
	fs.StringVar(&qrJSON, "qr", "", "scanned QR payload (JSON)")
	fs.Float64Var(&lat, "lat", 0, "current latitude")
	fs.Float64Var(&lon, "lon", 0, "current longitude")
	fs.BoolVar(&assumeYes, "yes", false, "skip the confirmation prompt")
	fs.StringVar(&server, "server", defaultServer(), "server base URL")
	fs.StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if qrJSON == "" {
		fmt.Fprintln(os.Stderr, "scan requires --qr")
		return 1
	}

	payload, err := attest.ParseQRPayload([]byte(qrJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}

	a, err := newApp(server, dataDir, newTerminalPrompt(assumeYes))
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}
	if !a.signer.HasKey() {
		fmt.Fprintln(os.Stderr, "scan: no device key, run enroll first")
		return 1
	}
	deviceID, err := a.deviceID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}

	outbox, err := a.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}
	defer outbox.Close()

	ctx := context.Background()
	already, err := outbox.HasForSession(ctx, payload.SessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}
	if already {
		fmt.Printf("attendance for session %s already recorded\n", payload.SessionID)
		return 0
	}

	// Class name is display-only metadata; an unreachable server or missing
	// session never blocks the scan itself.
	className := ""
	if sess, err := a.client.SessionCurrent(ctx); err == nil && sess.SessionID == payload.SessionID {
		className = sess.ClassName
	}

	// The claim timestamp must land inside the server's freshness window, so
	// it comes from the server-anchored clock, not the device clock.
	clock := timesync.New(a.server, nil)
	if err := clock.Probe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scan: time sync failed, using local clock: %v\n", err)
	}

	claim := attest.NewClaim(clock.NowISO(), deviceID, payload.SessionID, payload.QRNonce, lat, lon)
	canonical, err := claim.Canonical()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}
	sig, err := a.signer.Sign(ctx, canonical)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}

	err = outbox.Enqueue(ctx, queue.PendingClaim{
		ID:        claim.IdempotencyKey,
		Blob:      string(canonical),
		Sig:       base64.StdEncoding.EncodeToString(sig),
		ClassName: className,
		SessionID: claim.SessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return 1
	}

	fmt.Printf("queued claim %s for session %s\n", claim.IdempotencyKey, claim.SessionID)
	return 0
}
