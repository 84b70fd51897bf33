package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/platformplatform/developer-cli/internal/prereq"
	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/telemetry"
)

// exit flushes telemetry before leaving, since os.Exit skips PersistentPostRun.
func exit(code int) {
	telemetry.EndCommand(context.Background(), code)
	telemetry.Shutdown(context.Background())
	os.Exit(code)
}

// FatalError writes an error message to stderr and exits with code 1.
// Use this for fatal errors that prevent the command from completing.
//
// Example:
//
//	if err := w.EnsureStateDir(); err != nil {
//	    FatalError("%v", err)
//	}
func FatalError(format string, args ...interface{}) {
	if jsonOutput {
		outputJSONError(fmt.Errorf(format, args...), "", 1)
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
// Use this when you can provide an actionable suggestion to fix the error.
//
// Example:
//
//	FatalErrorWithHint("the AppHost is not running", "Run 'pp run --detach' first")
func FatalErrorWithHint(message, hint string) {
	if jsonOutput {
		outputJSONError(errors.New(message), hint, 1)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	exit(1)
}

// FatalToolError reports a failed wrapped tool and exits with that tool's
// exit code, or 1 when err did not come from a tool.
func FatalToolError(err error) {
	if jsonOutput {
		outputJSONError(err, "", process.ExitCode(err))
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exit(process.ExitCode(err))
}

// WarnError writes a warning message to stderr and returns.
// Use this for optional operations that enhance functionality but aren't required.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// requireTools stops the command before it runs when a prerequisite is
// missing or too old.
func requireTools(keys ...string) {
	err := prereq.NewChecker(runner).Require(rootCtx, keys...)
	if err == nil {
		return
	}
	var missing *prereq.MissingError
	if errors.As(err, &missing) {
		if hints := missing.Hints(); hints != "" {
			FatalErrorWithHint(err.Error(), hints)
		}
	}
	FatalError("%v", err)
}
