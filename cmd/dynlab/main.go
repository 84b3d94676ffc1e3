package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess  = 0 // Analysis completed
	ExitUnstable = 1 // --fail-unstable and a thread never stabilized
	ExitError    = 2 // Configuration, input or runtime error
)

// UnstableError indicates that the analysis ran successfully, but at least
// one thread shows no stable regime and --fail-unstable was set.
type UnstableError struct {
	Message string
}

func (e *UnstableError) Error() string {
	return e.Message
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var unstable *UnstableError
	if errors.As(err, &unstable) {
		return ExitUnstable
	}
	return ExitError
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
