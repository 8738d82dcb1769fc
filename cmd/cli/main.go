// Package main is the entry point for the projectplane CLI.
// The CLI is the operator and developer terminal tool for the projectplane API.
package main

import (
	"os"

	"projectplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
