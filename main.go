// Package main is the entry point for the fleetd network discovery agent.
package main

import (
	"fmt"
	"os"

	"metalgrid.io/fleetd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
