package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON outputs data as pretty-printed JSON to stdout.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		exit(1)
	}
}

// outputJSONResult prints v and exits with code when the command failed.
// JSON consumers still get the full report for a failing run.
func outputJSONResult(v interface{}, code int) {
	outputJSON(v)
	if code != 0 {
		exit(code)
	}
}

// outputJSONError outputs an error as JSON to stderr and exits with code.
// The Fatal* helpers route through it under --json.
func outputJSONError(err error, hint string, code int) {
	errObj := map[string]interface{}{"error": err.Error(), "exit_code": code}
	if hint != "" {
		errObj["hint"] = hint
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
	exit(code)
}
