// Package main is the entry point for the capmatch CLI.
package main

import (
	"os"

	"github.com/runger/capmatch/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
