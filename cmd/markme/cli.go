package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sandeep89846/MarkMe/pkg/apiclient"
	"github.com/sandeep89846/MarkMe/pkg/keystore"
	"github.com/sandeep89846/MarkMe/pkg/queue"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "enroll":
		return runEnroll(args[2:])
	case "session":
		return runSession(args[2:])
	case "scan":
		return runScan(args[2:])
	case "sync":
		return runSync(args[2:])
	case "history":
		return runHistory(args[2:])
	case "status":
		return runStatus(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "markme"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s enroll --id-token <jwt> [--server <url>] [--data-dir <dir>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s session [--server <url>] [--data-dir <dir>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s scan --qr <json> --lat <deg> --lon <deg> [--yes] [--server <url>] [--data-dir <dir>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s sync [--server <url>] [--data-dir <dir>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s history [--subject <id>] [--server <url>] [--data-dir <dir>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s status [--data-dir <dir>]\n", name)
}

// app carries the per-invocation wiring shared by every subcommand.
type app struct {
	dataDir string
	server  string
	client  *apiclient.Client
	signer  keystore.Signer
}

func defaultDataDir() string {
	if dir := os.Getenv("MARKME_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".markme"
	}
	return filepath.Join(home, ".markme")
}

func defaultServer() string {
	if url := os.Getenv("MARKME_SERVER"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func newApp(server, dataDir string, prompt keystore.AuthPrompt) (*app, error) {
	signer, err := keystore.NewFileSigner(dataDir, prompt)
	if err != nil {
		return nil, err
	}
	a := &app{
		dataDir: dataDir,
		server:  strings.TrimRight(server, "/"),
		client:  apiclient.New(strings.TrimRight(server, "/"), nil),
		signer:  signer,
	}
	if token, err := os.ReadFile(a.tokenPath()); err == nil {
		a.client.SetToken(strings.TrimSpace(string(token)))
	}
	return a, nil
}

func (a *app) tokenPath() string    { return filepath.Join(a.dataDir, "token") }
func (a *app) deviceIDPath() string { return filepath.Join(a.dataDir, "device_id") }
func (a *app) queuePath() string    { return filepath.Join(a.dataDir, "outbox.db") }

func (a *app) saveToken(token string) error {
	return os.WriteFile(a.tokenPath(), []byte(token), 0o600)
}

// deviceID returns the stable installation identifier, minting one on first
// use. Re-enrolling keeps the same ID; only a wiped data dir gets a new one.
func (a *app) deviceID() (string, error) {
	if raw, err := os.ReadFile(a.deviceIDPath()); err == nil {
		id := strings.TrimSpace(string(raw))
		if id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.WriteFile(a.deviceIDPath(), []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}

func (a *app) openQueue() (*queue.Store, error) {
	return queue.Open(a.queuePath())
}

// terminalPrompt stands in for the platform biometric prompt: signing asks
// for an explicit yes on the controlling terminal.
type terminalPrompt struct {
	in  *bufio.Reader
	yes bool
}

func newTerminalPrompt(assumeYes bool) *terminalPrompt {
	return &terminalPrompt{in: bufio.NewReader(os.Stdin), yes: assumeYes}
}

func (p *terminalPrompt) Confirm(_ context.Context, reason string) error {
	if p.yes {
		return nil
	}
	fmt.Fprintf(os.Stderr, "%s? [y/N] ", reason)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return keystore.ErrAuthFailed
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return keystore.ErrAuthCancelled
	}
}
