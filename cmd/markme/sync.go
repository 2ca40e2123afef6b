package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/pkg/syncer"
)

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
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
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		return 1
	}
	outbox, err := a.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		return 1
	}
	defer outbox.Close()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	s := syncer.New(outbox, a.client, time.Minute, logger)

	result, err := s.SyncOnce(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		return 1
	}

	fmt.Printf("submitted %d, verified %d, rejected %d, retryable %d\n",
		result.Submitted, result.Verified, result.Rejected, result.Retryable)
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var subjectID string
	var server string
	var dataDir string
	fs.StringVar(&subjectID, "subject", "", "fetch server history for this subject")
	fs.StringVar(&server, "server", defaultServer(), "server base URL")
	fs.StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	a, err := newApp(server, dataDir, newTerminalPrompt(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return 1
	}

	if subjectID != "" {
		items, err := a.client.MyHistory(context.Background(), subjectID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			return 1
		}
		for _, item := range items {
			fmt.Printf("%s  %-20s %-18s %s\n", item.Timestamp, item.ClassName, item.Status, item.ID)
		}
		return 0
	}

	outbox, err := a.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return 1
	}
	defer outbox.Close()

	rows, err := outbox.History(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return 1
	}
	for _, row := range rows {
		fmt.Printf("%s  %-20s %-18s %s\n",
			row.Timestamp.Format(time.RFC3339), row.ClassName, row.Status, row.ID)
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var dataDir string
	fs.StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	a, err := newApp(defaultServer(), dataDir, newTerminalPrompt(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	enrolled := "no"
	if a.signer.HasKey() {
		enrolled = "yes"
	}
	signedIn := "no"
	if _, err := os.Stat(a.tokenPath()); err == nil {
		signedIn = "yes"
	}
	fmt.Printf("device key: %s\n", enrolled)
	fmt.Printf("signed in:  %s\n", signedIn)

	outbox, err := a.openQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	defer outbox.Close()

	counts, err := outbox.Counts(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	for _, status := range []string{"PENDING", "SYNCING", "FAILED"} {
		if n := counts[status]; n > 0 {
			fmt.Printf("%-8s %d\n", status, n)
		}
	}
	if len(counts) == 0 {
		fmt.Println("outbox empty")
	}
	return 0
}
