// Package main implements dbreset, a command line tool that inspects the
// foreign keys of a PostgreSQL schema, prints a safe truncation order and
// resets the schema to a clean state between test runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitNotClean = 2
)

var (
	// errNotClean is returned by commands whose report found leftover state.
	errNotClean = errors.New("database is not clean")
	// errOrderRejected is returned by verify when the given order is unsafe.
	errOrderRejected = errors.New("truncation order rejected")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errNotClean), errors.Is(err, errOrderRejected):
		return exitNotClean
	default:
		return exitError
	}
}
