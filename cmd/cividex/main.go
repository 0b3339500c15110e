// Package main provides the entry point for the cividex CLI.
package main

import (
	"os"

	"github.com/openmuni/cividex/cmd/cividex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
