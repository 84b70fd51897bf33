// Package debug gates diagnostic output for the pp CLI and records
// command events to the workspace event log.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	enabled     = os.Getenv("PP_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	logMutex  sync.Mutex
	eventDir  string
	sessionID = uuid.NewString()
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}

// SessionID identifies this CLI invocation in the event log.
func SessionID() string {
	return sessionID
}

// SetEventLogDir points LogEvent at <dir>/events.log. An empty dir disables
// event logging, which is the state before a workspace has been discovered.
func SetEventLogDir(dir string) {
	logMutex.Lock()
	defer logMutex.Unlock()
	eventDir = dir
}

// LogEvent appends an event to the workspace events.log.
// Format: TIMESTAMP|EVENT_CODE|COMMAND|SESSION_ID|DETAILS
func LogEvent(eventCode, command, details string) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if eventDir == "" {
		return
	}
	if command == "" {
		command = "none"
	}

	// Details are free text; keep one event per line.
	details = strings.ReplaceAll(details, "\n", " ")
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n",
		time.Now().UTC().Format(time.RFC3339), eventCode, command, sessionID, details)

	if err := os.MkdirAll(eventDir, 0o750); err != nil {
		return
	}
	file, err := os.OpenFile(filepath.Join(eventDir, "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		// Event logging must never interrupt a command.
		return
	}
	defer file.Close()

	_, _ = file.WriteString(entry)
}
