// Package main is the tmdlgen command-line entry point.
package main

import (
	"os"

	"github.com/modelstack-labs/tmdlgen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
