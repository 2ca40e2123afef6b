package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sandeep89846/MarkMe/pkg/apiclient"
)

func runEnroll(args []string) int {
	fs := flag.NewFlagSet("enroll", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var idToken string
	var server string
	var dataDir string
	fs.StringVar(&idToken, "id-token", "", "Google ID token")
	fs.StringVar(&server, "server", defaultServer(), "server base URL")
	fs.StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if idToken == "" {
		fmt.Fprintln(os.Stderr, "enroll requires --id-token")
		return 1
	}

	a, err := newApp(server, dataDir, newTerminalPrompt(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "enroll: %v\n", err)
		return 1
	}
	deviceID, err := a.deviceID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "enroll: %v\n", err)
		return 1
	}

	// A fresh keypair on every enroll: the server only trusts the key it saw
	// at this sign-in, so a lost phone's key dies with the old registration.
	pubPEM, err := a.signer.Enroll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "enroll: generate key: %v\n", err)
		return 1
	}

	resp, err := a.client.GoogleSignIn(context.Background(), apiclient.SignInRequest{
		IDToken:   idToken,
		DeviceID:  deviceID,
		PubkeyPEM: pubPEM,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "enroll: sign in: %v\n", err)
		return 1
	}
	if err := a.saveToken(resp.Token); err != nil {
		fmt.Fprintf(os.Stderr, "enroll: %v\n", err)
		return 1
	}

	fmt.Printf("enrolled device %s\n", deviceID)
	return 0
}
