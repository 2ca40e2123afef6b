package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func runSession(args []string) int {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var server string
	var dataDir string
	fs.StringVar(&server, "server", defaultServer(), "server base URL")
	fs.StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	a, err := newApp(server, dataDir, newTerminalPrompt(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		return 1
	}

	sess, err := a.client.SessionCurrent(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		return 1
	}

	fmt.Printf("session:  %s\n", sess.SessionID)
	fmt.Printf("class:    %s\n", sess.ClassName)
	fmt.Printf("location: %.6f, %.6f\n", sess.Location.Latitude, sess.Location.Longitude)
	fmt.Printf("qr rotates every %dms\n", sess.QRRotationIntervalMs)
	return 0
}
