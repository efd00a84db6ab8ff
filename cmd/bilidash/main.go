// Package main is the entry point for the bilidash application.
package main

import (
	"os"

	"github.com/MicroDaWay/bilidash/cmd/bilidash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
