// Package main provides the clone-client CLI for a running voice-clone-service.
//
// Usage:
//
//	clone-client [flags] <command> [args]
//
// Commands:
//
//	clone     - Clone a voice for one text or a JSON file of texts
//	download  - Fetch generated audio by URL
//	health    - Report service and model state
package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
