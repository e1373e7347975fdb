package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/waftester/injectscan/pkg/ui"
)

const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitCanceled = 130
)

var (
	errUsage    = errors.New("usage")
	errCanceled = errors.New("scan canceled")
)

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// exitCode prints err (unless the flag package already did) and maps it to
// a process exit status.
func exitCode(stderr io.Writer, err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errCanceled):
		ui.PrintWarning(stderr, err.Error())
		return exitCanceled
	case errors.Is(err, errUsage):
		ui.PrintError(stderr, err.Error())
		return exitUsage
	default:
		ui.PrintError(stderr, err.Error())
		return exitError
	}
}
