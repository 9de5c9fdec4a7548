// Package main is the crawlify command-line entry point.
package main

import (
	"os"

	"github.com/crawlify/crawlify/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
