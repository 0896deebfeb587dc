// Package main is the entry point for the codecheckout command line client.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"codecheckout/cmd/codecheckout/commands"
)

// Exit codes
const (
	exitOK      = 0
	exitError   = 1
	exitInvalid = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, commands.DefaultDeps()))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, deps commands.Deps) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(deps)
	cli.SetArgs(args)
	cli.SetOutput(stdout, stderr)
	defer cli.Close()

	if err := cli.Execute(ctx); err != nil {
		if errors.Is(err, commands.ErrLicenseInvalid) {
			return exitInvalid
		}
		if logger := cli.Logger(); logger != nil {
			logger.ErrorContext(ctx, "Command failed", slog.String("error", err.Error()))
		}
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return exitError
	}
	return exitOK
}
